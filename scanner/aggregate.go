package scanner

import (
	"path"
	"sort"
	"strings"

	"github.com/mapperhq/mapper/scanner/models"
)

// entrypointPatterns are the conventional program-start naming patterns.
var entrypointPatterns = []string{
	"main.*",
	"index.*",
	"app.*",
	"server.*",
	"cli.*",
	"cmd/*/main.go",
	"cmd/*/main.rs",
	"cmd/*/main.py",
	"bin/*",
	"src/main.*",
	"src/index.*",
	"src/app.*",
	"src/server.*",
}

// matchesAtAnyDepth applies a glob at the start of relPath and again at
// every deeper path segment, so "main.*" also hits nested files.
func matchesAtAnyDepth(relPath, pattern string) bool {
	rest := relPath
	for {
		if ok, _ := path.Match(pattern, rest); ok {
			return true
		}
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return false
		}
		rest = rest[i+1:]
	}
}

// Entrypoints returns the files matching an entry-file pattern, sorted by
// token count descending, then path ascending, truncated to limit.
func Entrypoints(files []models.FileRecord, limit int) []models.Entrypoint {
	entrypoints := []models.Entrypoint{}
	for _, f := range files {
		for _, pattern := range entrypointPatterns {
			if matchesAtAnyDepth(f.Path, pattern) {
				entrypoints = append(entrypoints, models.Entrypoint{
					Path:   f.Path,
					Tokens: f.Tokens,
					Reason: "pattern:" + pattern,
				})
				break
			}
		}
	}
	sort.Slice(entrypoints, func(i, j int) bool {
		if entrypoints[i].Tokens != entrypoints[j].Tokens {
			return entrypoints[i].Tokens > entrypoints[j].Tokens
		}
		return entrypoints[i].Path < entrypoints[j].Path
	})
	if limit > 0 && len(entrypoints) > limit {
		entrypoints = entrypoints[:limit]
	}
	return entrypoints
}

// TopFiles returns the records sorted by token count descending, then path
// ascending, truncated to limit. A non-positive limit disables the list.
func TopFiles(files []models.FileRecord, limit int) []models.FileRecord {
	if limit <= 0 {
		return []models.FileRecord{}
	}
	sorted := make([]models.FileRecord, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Tokens != sorted[j].Tokens {
			return sorted[i].Tokens > sorted[j].Tokens
		}
		return sorted[i].Path < sorted[j].Path
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// Directories lists the distinct parent directories of the scanned files,
// sorted, excluding the root itself.
func Directories(files []models.FileRecord) []string {
	seen := make(map[string]struct{})
	for _, f := range files {
		dir := path.Dir(f.Path)
		if dir != "." {
			seen[dir] = struct{}{}
		}
	}
	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
