package scanner

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnorePatterns is the built-in deny-list: version control internals,
// dependency and build output trees, lockfiles, and binary/media extensions.
var defaultIgnorePatterns = []string{
	"**/.git/", "**/.svn/", "**/.hg/",
	"**/.idea/", "**/.vscode/", "**/.cache/", "**/.mapper/",
	"**/node_modules/", "**/__pycache__/",
	"**/.pytest_cache/", "**/.mypy_cache/", "**/.ruff_cache/",
	"**/venv/", "**/.venv/", "**/env/", "**/.env/",
	"**/dist/", "**/build/",
	"**/.next/", "**/.nuxt/", "**/.output/",
	"**/coverage/", "**/.nyc_output/",
	"**/target/", "**/vendor/",
	"**/.bundle/", "**/.cargo/", "**/.gradle/",
	"**/.turbo/", "**/.parcel-cache/", "**/.vercel/",
	"**/.svelte-kit/", "**/.serverless/", "**/.terraform/",
	"**/Pods/",
	"**/*.pyc", "**/*.pyo", "**/*.so", "**/*.dylib", "**/*.dll",
	"**/*.exe", "**/*.o", "**/*.a", "**/*.lib", "**/*.class",
	"**/*.jar", "**/*.war", "**/*.egg", "**/*.whl",
	"**/*.lock", "**/package-lock.json", "**/yarn.lock",
	"**/pnpm-lock.yaml", "**/bun.lockb", "**/Cargo.lock",
	"**/poetry.lock", "**/Gemfile.lock", "**/composer.lock",
	"**/*.min.js", "**/*.min.css", "**/*.map",
	"**/*.chunk.js", "**/*.bundle.js", "**/*.bundle.css",
	"**/*.log", "**/*.tmp", "**/*.temp", "**/*.bak", "**/*.swp",
	"**/*.png", "**/*.jpg", "**/*.jpeg", "**/*.gif", "**/*.ico",
	"**/*.svg", "**/*.webp", "**/*.mp3", "**/*.mp4", "**/*.wav",
	"**/*.avi", "**/*.mov", "**/*.pdf",
	"**/*.zip", "**/*.tar", "**/*.gz", "**/*.rar", "**/*.7z",
	"**/*.woff", "**/*.woff2", "**/*.ttf", "**/*.eot", "**/*.otf",
}

// Matcher decides whether a relative path is excluded from the scan.
// Directory candidates are passed with a trailing slash so matchers can
// honor directory-anchored patterns.
type Matcher interface {
	Match(relPath string) bool
}

// gitignoreMatcher wraps a full gitignore-semantics matcher: negation,
// directory anchors and ** all behave as git would treat them.
type gitignoreMatcher struct {
	spec *ignore.GitIgnore
}

func (m *gitignoreMatcher) Match(relPath string) bool {
	return m.spec.MatchesPath(relPath)
}

// simpleMatcher is the degraded fallback: each pattern is applied as a
// single glob, and negated patterns are ineffective. It exists so the scan
// still filters sensibly when the full matcher cannot be built.
type simpleMatcher struct {
	patterns []string
}

func (m *simpleMatcher) Match(relPath string) bool {
	for _, pattern := range m.patterns {
		if matchSimplePattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func matchSimplePattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, "!") {
		return false
	}
	if strings.HasSuffix(pattern, "/") {
		if !strings.HasSuffix(relPath, "/") {
			return false
		}
		pattern = strings.TrimSuffix(pattern, "/")
		relPath = strings.TrimSuffix(relPath, "/")
	}
	pattern = strings.TrimPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "**/")
	return globMatch(relPath, pattern)
}

// globMatch applies pattern at the start of relPath and at every path
// segment below it, so "vendor/" style patterns hit nested directories too.
func globMatch(relPath, pattern string) bool {
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

// IgnoreSet is the union of the built-in deny-list and the repository's own
// ignore files. User exclude globs are applied separately by the scan loop;
// keeping them out of the compiled matcher means a negated exclude can
// never resurrect a deny-listed path.
type IgnoreSet struct {
	matcher Matcher
}

// NewIgnoreSet builds the ignore set for a scan root. Repository ignore
// files are folded in only when the enumerator is not git-aware, since git
// listing already honors them natively. extra participates only in the
// degraded fallback matcher, which has no negation to begin with.
func NewIgnoreSet(root string, includeRepoIgnore bool, extra []string) *IgnoreSet {
	patterns := make([]string, 0, len(defaultIgnorePatterns))
	patterns = append(patterns, defaultIgnorePatterns...)
	if includeRepoIgnore {
		patterns = append(patterns, readIgnoreFile(filepath.Join(root, ".gitignore"))...)
		patterns = append(patterns, readIgnoreFile(filepath.Join(root, ".git", "info", "exclude"))...)
	}

	if spec := ignore.CompileIgnoreLines(patterns...); spec != nil {
		return &IgnoreSet{matcher: &gitignoreMatcher{spec: spec}}
	}
	return &IgnoreSet{matcher: &simpleMatcher{patterns: append(patterns, extra...)}}
}

// Match reports whether relPath is excluded. Directories must be passed
// with a trailing slash.
func (s *IgnoreSet) Match(relPath string) bool {
	return s.matcher.Match(relPath)
}

// readIgnoreFile returns the non-comment, non-empty lines of an ignore
// file, or nothing if the file is absent or unreadable.
func readIgnoreFile(path string) []string {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns
}
