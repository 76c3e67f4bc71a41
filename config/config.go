package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mapperhq/mapper/constants/lipgloss"
)

// Config represents the structure of the configuration file.
type Config struct {
	Encoding         string   `mapstructure:"encoding"`
	Tokenizer        string   `mapstructure:"tokenizer"`
	MaxTokens        int      `mapstructure:"max_tokens"`
	MaxSize          int64    `mapstructure:"max_size"`
	HashMode         string   `mapstructure:"hash_mode"`
	Workers          int      `mapstructure:"workers"`
	UseGit           bool     `mapstructure:"use_git"`
	GitPathspec      bool     `mapstructure:"git_pathspec"`
	FollowSymlinks   bool     `mapstructure:"follow_symlinks"`
	Include          []string `mapstructure:"include"`
	Exclude          []string `mapstructure:"exclude"`
	Cache            bool     `mapstructure:"cache"`
	CachePath        string   `mapstructure:"cache_path"`
	CacheCompress    bool     `mapstructure:"cache_compress"`
	ChurnCommits     int      `mapstructure:"churn_commits"`
	EntrypointsLimit int      `mapstructure:"entrypoints_limit"`
	TopFiles         int      `mapstructure:"top_files"`
	ModuleDepth      int      `mapstructure:"module_depth"`
	ChangedScope     string   `mapstructure:"changed_scope"`
	ChangedDepth     int      `mapstructure:"changed_depth"`
	PrevScan         string   `mapstructure:"prev_scan"`
}

// DefaultConfig values.
var DefaultConfig = Config{
	Encoding:         "cl100k_base",
	Tokenizer:        "tiktoken",
	MaxTokens:        50000,
	MaxSize:          1_000_000,
	HashMode:         "mtime",
	Workers:          0,
	UseGit:           true,
	GitPathspec:      true,
	FollowSymlinks:   false,
	Cache:            true,
	CacheCompress:    false,
	ChurnCommits:     0,
	EntrypointsLimit: 20,
	TopFiles:         20,
	ModuleDepth:      1,
	ChangedScope:     "files",
	ChangedDepth:     1,
}

// cfgFile holds the path to the configuration file (set via CLI).
var cfgFile string

// noConfig disables config file discovery entirely (set via CLI).
var noConfig bool

// LoadConfigs initializes the configuration from file, flags, and
// environment variables for a scan rooted at root, and returns the final
// config. Flags override the file, the file overrides the environment,
// the environment overrides defaults.
func LoadConfigs(rootCmd *cobra.Command, root string) *Config {
	var config *Config

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	bindEnv(v)

	if !noConfig {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error reading config file: %v", err)))
				os.Exit(1)
			}
		} else if discovered := discoverConfig(root); discovered != "" {
			v.SetConfigFile(discovered)
			if err := v.ReadInConfig(); err != nil {
				fmt.Println(lipgloss.Yellow.Render(fmt.Sprintf("Ignoring unreadable config file %s: %v", discovered, err)))
			}
		}
	}

	bindFlags(v, rootCmd)

	if err := v.Unmarshal(&config); err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Unable to decode into struct: %v", err)))
		os.Exit(1)
	}

	return config
}

// discoverConfig looks for a .mapper config file in the scan root.
func discoverConfig(root string) string {
	for _, name := range []string{".mapper.yml", ".mapper.yaml", ".mapper.json"} {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("encoding", DefaultConfig.Encoding)
	v.SetDefault("tokenizer", DefaultConfig.Tokenizer)
	v.SetDefault("max_tokens", DefaultConfig.MaxTokens)
	v.SetDefault("max_size", DefaultConfig.MaxSize)
	v.SetDefault("hash_mode", DefaultConfig.HashMode)
	v.SetDefault("workers", DefaultConfig.Workers)
	v.SetDefault("use_git", DefaultConfig.UseGit)
	v.SetDefault("git_pathspec", DefaultConfig.GitPathspec)
	v.SetDefault("follow_symlinks", DefaultConfig.FollowSymlinks)
	v.SetDefault("cache", DefaultConfig.Cache)
	v.SetDefault("cache_path", DefaultConfig.CachePath)
	v.SetDefault("cache_compress", DefaultConfig.CacheCompress)
	v.SetDefault("churn_commits", DefaultConfig.ChurnCommits)
	v.SetDefault("entrypoints_limit", DefaultConfig.EntrypointsLimit)
	v.SetDefault("top_files", DefaultConfig.TopFiles)
	v.SetDefault("module_depth", DefaultConfig.ModuleDepth)
	v.SetDefault("changed_scope", DefaultConfig.ChangedScope)
	v.SetDefault("changed_depth", DefaultConfig.ChangedDepth)
	v.SetDefault("prev_scan", DefaultConfig.PrevScan)
}

// bindEnv explicitly binds environment variables to configuration keys.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("encoding", "MAPPER_ENCODING")
	_ = v.BindEnv("tokenizer", "MAPPER_TOKENIZER")
	_ = v.BindEnv("max_tokens", "MAPPER_MAX_TOKENS")
	_ = v.BindEnv("max_size", "MAPPER_MAX_SIZE")
	_ = v.BindEnv("hash_mode", "MAPPER_HASH_MODE")
	_ = v.BindEnv("workers", "MAPPER_WORKERS")
	_ = v.BindEnv("use_git", "MAPPER_USE_GIT")
	_ = v.BindEnv("cache", "MAPPER_CACHE")
	_ = v.BindEnv("cache_path", "MAPPER_CACHE_PATH")
	_ = v.BindEnv("cache_compress", "MAPPER_CACHE_COMPRESS")
	_ = v.BindEnv("churn_commits", "MAPPER_CHURN_COMMITS")
}

// bindFlags binds the CLI flags to configuration values.
func bindFlags(v *viper.Viper, rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	_ = v.BindPFlag("encoding", flags.Lookup("encoding"))
	_ = v.BindPFlag("tokenizer", flags.Lookup("tokenizer"))
	_ = v.BindPFlag("max_tokens", flags.Lookup("max-tokens"))
	_ = v.BindPFlag("max_size", flags.Lookup("max-size"))
	_ = v.BindPFlag("hash_mode", flags.Lookup("hash-mode"))
	_ = v.BindPFlag("workers", flags.Lookup("workers"))
	_ = v.BindPFlag("use_git", flags.Lookup("use-git"))
	_ = v.BindPFlag("git_pathspec", flags.Lookup("git-pathspec"))
	_ = v.BindPFlag("follow_symlinks", flags.Lookup("follow-symlinks"))
	_ = v.BindPFlag("include", flags.Lookup("include"))
	_ = v.BindPFlag("exclude", flags.Lookup("exclude"))
	_ = v.BindPFlag("cache", flags.Lookup("cache"))
	_ = v.BindPFlag("cache_path", flags.Lookup("cache-path"))
	_ = v.BindPFlag("cache_compress", flags.Lookup("cache-compress"))
	_ = v.BindPFlag("churn_commits", flags.Lookup("churn-commits"))
	_ = v.BindPFlag("entrypoints_limit", flags.Lookup("entrypoints-limit"))
	_ = v.BindPFlag("top_files", flags.Lookup("top-files"))
	_ = v.BindPFlag("module_depth", flags.Lookup("module-depth"))
	_ = v.BindPFlag("changed_scope", flags.Lookup("changed-scope"))
	_ = v.BindPFlag("changed_depth", flags.Lookup("changed-depth"))
	_ = v.BindPFlag("prev_scan", flags.Lookup("prev-scan"))
}

// InitFlags initializes the flags for the root command.
func InitFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&cfgFile, "config", "c", "", "Path to a configuration file (YAML or JSON); default is .mapper.yml in the scan root.")
	flags.BoolVar(&noConfig, "no-config", false, "Ignore any configuration file.")

	flags.String("encoding", DefaultConfig.Encoding, "Subword encoding used for exact token counting (e.g. 'cl100k_base').")
	flags.String("tokenizer", DefaultConfig.Tokenizer, "Token counting mode: 'tiktoken' or 'heuristic'.")
	flags.Int("max-tokens", DefaultConfig.MaxTokens, "Skip files with more than this many tokens.")
	flags.Int64("max-size", DefaultConfig.MaxSize, "Skip files larger than this many bytes.")
	flags.String("hash-mode", DefaultConfig.HashMode, "Content verification mode: 'mtime', 'fast' or 'full'.")
	flags.Int("workers", DefaultConfig.Workers, "Parallel workers for tokenization (0 or 1 = sequential).")
	flags.Bool("use-git", DefaultConfig.UseGit, "Use git to list files when the root is a repository.")
	flags.Bool("git-pathspec", DefaultConfig.GitPathspec, "Push include/exclude patterns down into the git listing.")
	flags.Bool("follow-symlinks", DefaultConfig.FollowSymlinks, "Follow symlinks when walking the filesystem.")
	flags.StringSlice("include", nil, "Glob pattern of files to include (repeatable).")
	flags.StringSlice("exclude", nil, "Glob pattern of files to exclude (repeatable).")
	flags.Bool("cache", DefaultConfig.Cache, "Enable the scan fingerprint cache.")
	flags.String("cache-path", DefaultConfig.CachePath, "Path to the cache file (default: .mapper/scan-cache.json in the root).")
	flags.Bool("cache-compress", DefaultConfig.CacheCompress, "Compress the cache file with gzip.")
	flags.Int("churn-commits", DefaultConfig.ChurnCommits, "Compute churn hotspots from the last N commits (0 disables).")
	flags.Int("entrypoints-limit", DefaultConfig.EntrypointsLimit, "Limit entrypoint candidates (0 disables).")
	flags.Int("top-files", DefaultConfig.TopFiles, "Limit top files by tokens (0 disables).")
	flags.Int("module-depth", DefaultConfig.ModuleDepth, "Path depth used to group files into modules.")
	flags.String("changed-scope", DefaultConfig.ChangedScope, "Limit the scan to changed 'files' or their 'modules'.")
	flags.Int("changed-depth", DefaultConfig.ChangedDepth, "Module depth when --changed-scope is 'modules'.")
	flags.String("prev-scan", "", "Previous scan artifact used to compute changed modules.")
}
