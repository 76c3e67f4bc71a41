package scanner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mapperhq/mapper/scanner/models"
)

// Git shells out to the git binary for file listing, repository status,
// churn and changed-file queries. Absence or failure of git is never fatal;
// callers degrade to filesystem enumeration and empty churn.
type Git struct {
	root string
}

// NewGit creates a Git bound to a working directory.
func NewGit(root string) *Git {
	return &Git{root: root}
}

// Available reports whether a git binary is on PATH.
func (g *Git) Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsRepo reports whether the root is inside a git work tree.
func (g *Git) IsRepo() bool {
	if _, err := os.Stat(filepath.Join(g.root, ".git")); err == nil {
		return true
	}
	if !g.Available() {
		return false
	}
	out, err := g.output("rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Head returns the current commit hash, or nil when unavailable.
func (g *Git) Head() *string {
	out, err := g.output("rev-parse", "HEAD")
	if err != nil {
		return nil
	}
	head := strings.TrimSpace(out)
	return &head
}

// Branch returns the current branch name, or nil when unavailable.
func (g *Git) Branch() *string {
	out, err := g.output("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil
	}
	branch := strings.TrimSpace(out)
	return &branch
}

// Dirty reports whether the work tree has uncommitted changes, or nil when
// the status command fails.
func (g *Git) Dirty() *bool {
	out, err := g.output("status", "--porcelain")
	if err != nil {
		return nil
	}
	dirty := strings.TrimSpace(out) != ""
	return &dirty
}

// ListFiles returns the tracked plus untracked-but-not-ignored file set,
// optionally narrowed by pathspecs.
func (g *Git) ListFiles(pathspecs []string) ([]string, error) {
	args := []string{"ls-files", "-co", "--exclude-standard", "-z"}
	if len(pathspecs) > 0 {
		args = append(args, "--")
		args = append(args, pathspecs...)
	}
	out, err := g.output(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list git files: %w", err)
	}
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// BuildPathspec converts include/exclude globs into git pathspec magic so
// filtering happens inside the listing command. This is an optimization;
// the scan-side filters still apply.
func BuildPathspec(include, exclude []string) []string {
	var specs []string
	for _, pattern := range include {
		if spec := normalizePathspec(pattern, false); spec != "" {
			specs = append(specs, spec)
		}
	}
	for _, pattern := range exclude {
		if spec := normalizePathspec(pattern, true); spec != "" {
			specs = append(specs, spec)
		}
	}
	return specs
}

func normalizePathspec(pattern string, exclude bool) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return ""
	}
	pattern = strings.TrimPrefix(pattern, "!")
	if strings.HasPrefix(pattern, ":") {
		return pattern
	}
	if exclude {
		return fmt.Sprintf(":(exclude,glob)%s", pattern)
	}
	return fmt.Sprintf(":(glob)%s", pattern)
}

// Churn counts, over the last commits, how many touched each path in
// fileSet. Results are sorted by count descending, then path ascending.
func (g *Git) Churn(commits int, fileSet map[string]struct{}) []models.ChurnEntry {
	if commits <= 0 || !g.Available() || !g.IsRepo() {
		return []models.ChurnEntry{}
	}
	out, err := g.output("log", "-n", fmt.Sprint(commits), "--name-only", "--pretty=format:")
	if err != nil {
		return []models.ChurnEntry{}
	}

	counts := make(map[string]int)
	for _, line := range strings.Split(out, "\n") {
		path := strings.TrimSpace(line)
		if path == "" {
			continue
		}
		if len(fileSet) > 0 {
			if _, ok := fileSet[path]; !ok {
				continue
			}
		}
		counts[path]++
	}

	churn := make([]models.ChurnEntry, 0, len(counts))
	for path, count := range counts {
		churn = append(churn, models.ChurnEntry{Path: path, Commits: count})
	}
	sort.Slice(churn, func(i, j int) bool {
		if churn[i].Commits != churn[j].Commits {
			return churn[i].Commits > churn[j].Commits
		}
		return churn[i].Path < churn[j].Path
	})
	return churn
}

// ChangedFiles derives a changed-path list from a diff range, a base
// commit, or a since date, optionally unioned with untracked files. Order
// is preserved, duplicates dropped.
func (g *Git) ChangedFiles(rangeSpec, sinceCommit, sinceDate string, includeUntracked bool) []string {
	if !g.IsRepo() {
		return nil
	}

	var args []string
	switch {
	case rangeSpec != "":
		args = []string{"diff", "--name-only", rangeSpec}
	case sinceCommit != "":
		args = []string{"diff", "--name-only", sinceCommit + "..HEAD"}
	case sinceDate != "":
		args = []string{"log", "--since=" + sinceDate, "--name-only", "--pretty=format:"}
	default:
		return nil
	}

	var files []string
	if out, err := g.output(args...); err == nil {
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				files = append(files, line)
			}
		}
	}

	if includeUntracked {
		if out, err := g.output("ls-files", "--others", "--exclude-standard"); err == nil {
			for _, line := range strings.Split(out, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					files = append(files, line)
				}
			}
		}
	}

	seen := make(map[string]struct{}, len(files))
	deduped := files[:0]
	for _, path := range files {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		deduped = append(deduped, path)
	}
	return deduped
}

func (g *Git) output(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.root
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
