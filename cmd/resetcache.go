package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mapperhq/mapper/constants/lipgloss"
	"github.com/mapperhq/mapper/scanner"
)

// resetCacheCmd represents the reset-cache command
var resetCacheCmd = &cobra.Command{
	Use:   "reset-cache [path]",
	Short: "Delete the scan fingerprint cache.",
	Long: `The 'reset-cache' command removes the persisted fingerprint cache for the
scan root. The next scan re-reads and re-tokenizes every file, then writes
a fresh cache. Use it when the cache is suspected to be corrupted or after
changing tokenizer settings across many runs.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		stats, _ := cmd.Flags().GetBool("stats")

		rootDependencies := handleRootCommand(cmd, args)
		if rootDependencies == nil {
			os.Exit(1)
		}
		handleResetCacheCommand(force, stats, rootDependencies)
	},
}

func init() {
	resetCacheCmd.Flags().BoolP("force", "f", false, "Delete without confirmation")
	resetCacheCmd.Flags().BoolP("stats", "s", false, "Show cache statistics instead of deleting")

	rootCmd.AddCommand(resetCacheCmd)
}

func handleResetCacheCommand(force bool, showStats bool, rootDependencies *RootDependencies) {
	cfg := rootDependencies.Config

	cachePath := cfg.CachePath
	if cachePath == "" {
		cachePath = filepath.FromSlash(scanner.DefaultCachePath)
	}
	if !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(rootDependencies.Root, cachePath)
	}

	info, err := os.Stat(cachePath)
	if err != nil {
		fmt.Println(lipgloss.Yellow.Render(fmt.Sprintf("No cache file at %s. Nothing to reset.", cachePath)))
		return
	}

	if showStats {
		fmt.Println(lipgloss.Info.Render("Cache Statistics:"))
		fmt.Printf("  Cache File: %s\n", cachePath)
		fmt.Printf("  Size: %.2f KB\n", float64(info.Size())/1024)
		fmt.Printf("  Modified: %s\n", info.ModTime().UTC().Format("2006-01-02T15:04:05Z"))
		if !cfg.Cache {
			fmt.Println("  Cache is disabled in the current configuration")
		}
		return
	}

	if !force {
		reader := bufio.NewReader(os.Stdin)
		fmt.Printf("Are you sure you want to delete %s? (y/N): ", cachePath)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println(lipgloss.Yellow.Render("Cache reset cancelled."))
			return
		}
	}

	spinner := pterm.DefaultSpinner.WithStyle(pterm.NewStyle(pterm.FgCyan)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(100).WithRemoveWhenDone(true)

	spinnerInstance, _ := spinner.Start("Deleting scan cache...")

	if err := os.Remove(cachePath); err != nil {
		spinnerInstance.Stop()
		fmt.Print("\r")
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("Error deleting cache: %v", err)))
		return
	}

	spinnerInstance.Stop()
	fmt.Print("\r")
	fmt.Println(lipgloss.Green.Render("✓ Scan cache has been deleted!"))
}
