package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// enumerateGit yields the repository's candidate set as relative paths. Any
// listing failure is returned so the caller can fall back to a walk.
func enumerateGit(git *Git, pathspecs []string) ([]string, error) {
	return git.ListFiles(pathspecs)
}

// enumerateFS walks the tree rooted at root, pruning ignored directories
// before descending so large ignored trees are never entered. Yields
// relative slash-separated paths of regular files. When followSymlinks is
// set, directory symlinks are descended (resolved targets are tracked so
// link cycles terminate); otherwise symlinks stay candidates and the
// per-file symlink policy is applied later where skips are recorded.
func enumerateFS(root string, ignores *IgnoreSet, followSymlinks bool) []string {
	var paths []string

	visited := make(map[string]struct{})
	if real, err := filepath.EvalSymlinks(root); err == nil {
		visited[real] = struct{}{}
	}

	var walk func(dir, prefix string)
	walk = func(dir, prefix string) {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries are simply not candidates.
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			sub, relErr := filepath.Rel(dir, path)
			if relErr != nil || sub == "." {
				return nil
			}
			rel := filepath.ToSlash(sub)
			if prefix != "" {
				rel = prefix + "/" + rel
			}

			if d.IsDir() {
				if ignores.Match(rel + "/") {
					return filepath.SkipDir
				}
				return nil
			}
			if followSymlinks && d.Type()&fs.ModeSymlink != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					// WalkDir never descends symlinked directories itself.
					if !ignores.Match(rel+"/") && markVisited(visited, path) {
						walk(path, rel)
					}
					return nil
				}
			}
			if ignores.Match(rel) {
				return nil
			}
			paths = append(paths, rel)
			return nil
		})
	}
	walk(root, "")
	return paths
}

// markVisited records the resolved target of a directory symlink. A target
// seen before, or one that cannot be resolved, must not be entered again.
func markVisited(visited map[string]struct{}, path string) bool {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	if _, ok := visited[real]; ok {
		return false
	}
	visited[real] = struct{}{}
	return true
}

// normalizeRel strips a leading ./ the way externally supplied changed
// lists often carry it.
func normalizeRel(path string) string {
	return strings.TrimPrefix(path, "./")
}
