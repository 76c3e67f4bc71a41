package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mapperhq/mapper/scanner/models"
)

// treeNode is either a directory (children non-nil) or a file (record
// non-nil).
type treeNode struct {
	children map[string]*treeNode
	record   *models.FileRecord
}

// FormatTree renders the scanned files as a token-annotated directory tree.
func FormatTree(result *models.ScanResult) string {
	var lines []string
	lines = append(lines, filepath.Base(result.Root)+"/")
	lines = append(lines, fmt.Sprintf("Total: %d files, %s tokens",
		result.TotalFiles, groupDigits(result.TotalTokens)))
	lines = append(lines, "")

	root := &treeNode{children: map[string]*treeNode{}}
	for i := range result.Files {
		f := &result.Files[i]
		parts := strings.Split(f.Path, "/")
		current := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := current.children[part]
			if !ok {
				next = &treeNode{children: map[string]*treeNode{}}
				current.children[part] = next
			}
			current = next
		}
		current.children[parts[len(parts)-1]] = &treeNode{record: f}
	}

	var walk func(node *treeNode, prefix string)
	walk = func(node *treeNode, prefix string) {
		names := make([]string, 0, len(node.children))
		for name := range node.children {
			names = append(names, name)
		}
		// Directories before files, then case-insensitive by name.
		sort.Slice(names, func(i, j int) bool {
			di := node.children[names[i]].record == nil
			dj := node.children[names[j]].record == nil
			if di != dj {
				return di
			}
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})

		for i, name := range names {
			child := node.children[name]
			connector := "├── "
			extension := "│   "
			if i == len(names)-1 {
				connector = "└── "
				extension = "    "
			}
			if child.record == nil {
				lines = append(lines, prefix+connector+name+"/")
				walk(child, prefix+extension)
			} else {
				lines = append(lines, fmt.Sprintf("%s%s%s (%s tokens)",
					prefix, connector, name, groupDigits(child.record.Tokens)))
			}
		}
	}
	walk(root, "")

	return strings.Join(lines, "\n")
}

// FormatSummary renders the run's key figures one per line.
func FormatSummary(result *models.ScanResult) string {
	var lines []string
	lines = append(lines, "Root: "+result.Root)
	lines = append(lines, fmt.Sprintf("Files: %d", result.TotalFiles))
	lines = append(lines, "Tokens: "+groupDigits(result.TotalTokens))
	lines = append(lines, "Scan hash: "+result.ScanHash)
	lines = append(lines, fmt.Sprintf("Git used: %t", result.GitUsed))
	if result.GitHead != nil {
		lines = append(lines, "Git head: "+*result.GitHead)
	}
	if result.GitBranch != nil {
		lines = append(lines, "Git branch: "+*result.GitBranch)
	}
	if result.GitDirty != nil {
		lines = append(lines, fmt.Sprintf("Git dirty: %t", *result.GitDirty))
	}
	lines = append(lines, fmt.Sprintf("Cache hits: %d", result.CacheHits))
	lines = append(lines, fmt.Sprintf("Cache misses: %d", result.CacheMisses))
	lines = append(lines, fmt.Sprintf("Cache compress: %t", result.CacheCompress))
	lines = append(lines, "Tokenizer: "+result.Tokenizer)
	lines = append(lines, "Hash mode: "+result.HashMode)
	lines = append(lines, fmt.Sprintf("Workers: %d", result.Workers))
	lines = append(lines, fmt.Sprintf("Modules: %d", len(result.ModuleHashes)))
	lines = append(lines, fmt.Sprintf("Entrypoints: %d", len(result.Entrypoints)))
	lines = append(lines, fmt.Sprintf("Top files: %d", len(result.TopFiles)))
	if result.ChangedModules != nil {
		lines = append(lines, fmt.Sprintf("Changed modules: %d", len(result.ChangedModules)))
	}
	lines = append(lines, fmt.Sprintf("Elapsed ms: %d", result.ElapsedMs))
	return strings.Join(lines, "\n")
}

// FormatCompact renders a token-sorted path listing, largest first.
func FormatCompact(result *models.ScanResult) string {
	files := make([]models.FileRecord, len(result.Files))
	copy(files, result.Files)
	sort.Slice(files, func(i, j int) bool {
		if files[i].Tokens != files[j].Tokens {
			return files[i].Tokens > files[j].Tokens
		}
		return files[i].Path < files[j].Path
	})

	var lines []string
	lines = append(lines, "# "+result.Root)
	lines = append(lines, fmt.Sprintf("# Total: %d files, %s tokens",
		result.TotalFiles, groupDigits(result.TotalTokens)))
	lines = append(lines, "")
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("%8d %s", f.Tokens, f.Path))
	}
	return strings.Join(lines, "\n")
}

// groupDigits formats n with comma thousands separators.
func groupDigits(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
