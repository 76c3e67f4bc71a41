package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mapperhq/mapper/config"
	"github.com/mapperhq/mapper/constants/lipgloss"
)

// RootDependencies are the resolved inputs every subcommand works from.
type RootDependencies struct {
	Config *config.Config
	Root   string
}

var rootCmd = &cobra.Command{
	Use:   "mapper",
	Short: "Incremental codebase inventory with token counts and change fingerprints.",
	Long: `mapper scans a directory tree (git-aware when possible) and produces a
deterministic inventory of its text files: token counts, content
fingerprints, per-module digests, churn hotspots and entrypoint
candidates. A persisted fingerprint cache keeps repeat scans cheap by
re-reading only files whose mtime or size changed.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// handleRootCommand resolves the scan root from args and loads the layered
// configuration for it.
func handleRootCommand(cmd *cobra.Command, args []string) *RootDependencies {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error resolving path: %v", err)))
		return nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Path does not exist: %s", abs)))
		return nil
	}
	if !info.IsDir() {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Path is not a directory: %s", abs)))
		return nil
	}

	return &RootDependencies{
		Config: config.LoadConfigs(rootCmd, abs),
		Root:   abs,
	}
}

// Execute runs the root command.
func Execute() {
	config.InitFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("%v", err)))
		os.Exit(1)
	}
}
