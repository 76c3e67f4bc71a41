package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mapperhq/mapper/constants/lipgloss"
	"github.com/mapperhq/mapper/scanner"
)

// scanCmd: mapper scan [path]
var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a codebase and output file paths with token counts.",
	Long: `The 'scan' subcommand walks the given directory (or the current one),
counts tokens in every admitted text file, and emits a deterministic
inventory artifact. Unchanged files are served from the fingerprint
cache; only new or modified files are re-read and re-tokenized.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rootDependencies := handleRootCommand(cmd, args)
		if rootDependencies == nil {
			os.Exit(1)
		}
		if !handleScanCommand(cmd, rootDependencies) {
			os.Exit(1)
		}
	},
}

func init() {
	scanCmd.Flags().String("format", "json", "Output format: json, tree, summary or compact.")
	scanCmd.Flags().String("out", "", "Write output to a file instead of stdout.")
	scanCmd.Flags().String("changed-list", "", "Path to a file with changed paths, one per line.")
	scanCmd.Flags().StringArray("changed", nil, "Changed file path (repeatable).")
	scanCmd.Flags().String("changed-range", "", "Git diff range (e.g. abc123..HEAD) to derive changed files.")
	scanCmd.Flags().String("changed-since-commit", "", "Base commit to derive changed files.")
	scanCmd.Flags().String("changed-since-date", "", "Since date to derive changed files (e.g. '2024-01-01').")
	scanCmd.Flags().Bool("include-untracked", false, "Include untracked files when deriving changed files from git.")

	rootCmd.AddCommand(scanCmd)
}

func handleScanCommand(cmd *cobra.Command, rootDependencies *RootDependencies) bool {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json", "tree", "summary", "compact":
	default:
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Unknown format %q (want json, tree, summary or compact)", format)))
		return false
	}
	outPath, _ := cmd.Flags().GetString("out")

	opts, err := buildScanOptions(cmd, rootDependencies)
	if err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("%v", err)))
		return false
	}

	s := scanner.NewScanner()
	if err := s.Validate(opts); err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("%v", err)))
		return false
	}

	spinner := pterm.DefaultSpinner.WithStyle(pterm.NewStyle(pterm.FgLightBlue)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(100).WithRemoveWhenDone(true)

	spinnerScan, _ := spinner.Start("Scanning codebase...")

	result, err := s.Scan(ctx, opts)
	spinnerScan.Stop()
	fmt.Print("\r")
	if err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("%v", err)))
		return false
	}

	var output string
	switch format {
	case "tree":
		output = FormatTree(result)
	case "summary":
		output = FormatSummary(result)
	case "compact":
		output = FormatCompact(result)
	default:
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error encoding result: %v", err)))
			return false
		}
		output = string(encoded)
	}

	if outPath == "" {
		fmt.Println(output)
		return true
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error creating output directory: %v", err)))
		return false
	}
	if err := os.WriteFile(outPath, []byte(output), 0644); err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error writing output: %v", err)))
		return false
	}
	fmt.Println(lipgloss.Green.Render(fmt.Sprintf("✓ Wrote %s files, %s tokens to %s",
		groupDigits(result.TotalFiles), groupDigits(result.TotalTokens), outPath)))
	return true
}

// buildScanOptions merges the layered config with the scan-only flags into
// a single options value, resolving changed paths along the way.
func buildScanOptions(cmd *cobra.Command, rootDependencies *RootDependencies) (scanner.Options, error) {
	cfg := rootDependencies.Config
	root := rootDependencies.Root

	opts := scanner.Options{
		Root:             root,
		EncodingName:     cfg.Encoding,
		TokenizerKind:    cfg.Tokenizer,
		MaxFileTokens:    cfg.MaxTokens,
		MaxFileSize:      cfg.MaxSize,
		HashMode:         cfg.HashMode,
		Workers:          cfg.Workers,
		UseGit:           cfg.UseGit,
		GitPathspec:      cfg.GitPathspec,
		FollowSymlinks:   cfg.FollowSymlinks,
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		ChangedScope:     cfg.ChangedScope,
		ChangedDepth:     cfg.ChangedDepth,
		ChurnCommits:     cfg.ChurnCommits,
		EntrypointsLimit: cfg.EntrypointsLimit,
		TopFilesLimit:    cfg.TopFiles,
		ModuleDepth:      cfg.ModuleDepth,
		CacheEnabled:     cfg.Cache,
		CacheCompress:    cfg.CacheCompress,
	}
	if opts.ModuleDepth < 1 {
		opts.ModuleDepth = 1
	}

	if cfg.CachePath != "" {
		opts.CachePath = cfg.CachePath
		if !filepath.IsAbs(opts.CachePath) {
			opts.CachePath = filepath.Join(root, opts.CachePath)
		}
	}
	if cfg.PrevScan != "" {
		opts.PrevScanPath = cfg.PrevScan
		if !filepath.IsAbs(opts.PrevScanPath) {
			opts.PrevScanPath = filepath.Join(root, opts.PrevScanPath)
		}
	}

	changed, err := resolveChangedPaths(cmd, root)
	if err != nil {
		return scanner.Options{}, err
	}
	opts.ChangedPaths = changed

	return opts, nil
}

// resolveChangedPaths gathers changed paths from the explicit flags, the
// changed-list file, and git history flags, deduplicated in input order.
func resolveChangedPaths(cmd *cobra.Command, root string) ([]string, error) {
	seen := make(map[string]struct{})
	var changed []string
	add := func(p string) {
		p = strings.TrimSpace(strings.TrimPrefix(p, "./"))
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		changed = append(changed, p)
	}

	if listPath, _ := cmd.Flags().GetString("changed-list"); listPath != "" {
		data, err := os.ReadFile(listPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read changed list: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			add(line)
		}
	}

	explicit, _ := cmd.Flags().GetStringArray("changed")
	for _, p := range explicit {
		add(p)
	}

	rangeSpec, _ := cmd.Flags().GetString("changed-range")
	sinceCommit, _ := cmd.Flags().GetString("changed-since-commit")
	sinceDate, _ := cmd.Flags().GetString("changed-since-date")
	includeUntracked, _ := cmd.Flags().GetBool("include-untracked")

	if rangeSpec != "" || sinceCommit != "" || sinceDate != "" {
		git := scanner.NewGit(root)
		if !git.Available() || !git.IsRepo() {
			return nil, fmt.Errorf("changed-range, changed-since-commit and changed-since-date require a git repository")
		}
		for _, p := range git.ChangedFiles(rangeSpec, sinceCommit, sinceDate, includeUntracked) {
			add(p)
		}
	}

	return changed, nil
}
