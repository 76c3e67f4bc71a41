package scanner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapperhq/mapper/scanner/models"
)

// writeTree lays out files under root; keys are slash-separated relative
// paths.
func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
		require.NoError(t, os.WriteFile(abs, content, 0644))
	}
}

// testOptions returns scan options decoupled from git and from the exact
// tokenizer so results are fully deterministic.
func testOptions(root string) Options {
	opts := DefaultOptions(root)
	opts.TokenizerKind = TokenizerHeuristic
	opts.UseGit = false
	return opts
}

func filePaths(result *models.ScanResult) []string {
	paths := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

func skipByPath(result *models.ScanResult, path string) (models.SkipRecord, bool) {
	for _, s := range result.Skipped {
		if s.Path == path {
			return s, true
		}
	}
	return models.SkipRecord{}, false
}

// Test a plain scan over a small tree
func TestScan_Basic(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"main.go":          []byte("package main\n\nfunc main() {}\n"),
		"internal/util.go": []byte("package internal\n"),
		"README.md":        []byte("# readme\n"),
		"blob.unknownext":  {1, 2, 0, 3},
	})

	result, err := NewScanner().Scan(context.Background(), testOptions(root))
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "internal/util.go", "main.go"}, filePaths(result))
	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, []string{"internal"}, result.Directories)
	assert.False(t, result.GitUsed)
	assert.Equal(t, TokenizerHeuristic, result.Tokenizer)
	assert.Equal(t, 0, result.CacheHits)
	assert.Equal(t, 3, result.CacheMisses)
	assert.NotEmpty(t, result.ScanHash)

	total := 0
	for _, f := range result.Files {
		assert.Greater(t, f.Tokens, 0)
		assert.Greater(t, f.SizeBytes, int64(0))
		assert.Greater(t, f.Mtime, float64(0))
		total += f.Tokens
	}
	assert.Equal(t, total, result.TotalTokens)

	skip, ok := skipByPath(result, "blob.unknownext")
	require.True(t, ok)
	assert.Equal(t, models.SkipBinary, skip.Reason)
}

// Test that a repeat scan is all cache hits with an identical hash
func TestScan_Idempotent(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"a.go": []byte("package a\n"),
		"b.go": []byte("package b\nvar X = 1\n"),
	})

	opts := testOptions(root)
	scanner := NewScanner()

	first, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, first.CacheMisses)

	second, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, 0, second.CacheMisses)
	assert.Equal(t, first.ScanHash, second.ScanHash)
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, first.ModuleHashes, second.ModuleHashes)
}

// Test that touching the mtime invalidates the entry but reproduces the
// same token count
func TestScan_MtimeTouchMisses(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{"a.go": []byte("package a\n")})

	opts := testOptions(root)
	scanner := NewScanner()

	first, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.go"), later, later))

	second, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CacheHits)
	assert.Equal(t, 1, second.CacheMisses)
	assert.Equal(t, first.Files[0].Tokens, second.Files[0].Tokens)
	// The mtime is part of the scan hash in mtime mode.
	assert.NotEqual(t, first.ScanHash, second.ScanHash)
}

// Test that full hash mode keeps module hashes stable across mtime churn
func TestScan_FullModeHashInvariance(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{"pkg/a.go": []byte("package pkg\n")})

	opts := testOptions(root)
	opts.HashMode = HashModeFull
	scanner := NewScanner()

	first, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)
	require.NotEmpty(t, first.Files[0].ContentHash)

	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "pkg", "a.go"), later, later))

	second, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first.Files[0].ContentHash, second.Files[0].ContentHash)
	assert.Equal(t, first.ModuleHashes, second.ModuleHashes)
}

// Test worker-count invariance over the same tree
func TestScan_WorkerCountInvariance(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	files := make(map[string][]byte)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files["pkg/"+name+".go"] = []byte("package pkg\n// " + strings.Repeat(name, 30) + "\n")
	}
	writeTree(t, root, files)

	seq := testOptions(root)
	seq.CacheEnabled = false
	par := seq
	par.Workers = 4

	sequential, err := NewScanner().Scan(context.Background(), seq)
	require.NoError(t, err)
	parallel, err := NewScanner().Scan(context.Background(), par)
	require.NoError(t, err)

	assert.Equal(t, sequential.Files, parallel.Files)
	assert.Equal(t, sequential.TotalTokens, parallel.TotalTokens)
	assert.Equal(t, sequential.ScanHash, parallel.ScanHash)
}

// Test the size and token ceilings
func TestScan_Ceilings(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"small.go": []byte("package small\n"),
		"big.go":   []byte("package big\n" + strings.Repeat("// padding\n", 100)),
		"huge.md":  []byte(strings.Repeat("lorem ipsum ", 40)),
	})

	opts := testOptions(root)
	opts.MaxFileSize = 1000
	opts.MaxFileTokens = 50

	result, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.go"}, filePaths(result))

	big, ok := skipByPath(result, "big.go")
	require.True(t, ok)
	assert.Equal(t, models.SkipTooLarge, big.Reason)
	assert.Greater(t, big.SizeBytes, int64(1000))

	huge, ok := skipByPath(result, "huge.md")
	require.True(t, ok)
	assert.Equal(t, models.SkipTooManyTokens, huge.Reason)
	assert.Greater(t, huge.Tokens, 50)
}

// Test that deny-listed directories are filtered without skip records
func TestScan_IgnoredTrees(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"main.go":                         []byte("package main\n"),
		"node_modules/left-pad/index.js":  []byte("module.exports = x => x\n"),
		"vendor/github.com/x/y/y.go":      []byte("package y\n"),
		"sub/node_modules/other/index.js": []byte("module.exports = 1\n"),
	})

	result, err := NewScanner().Scan(context.Background(), testOptions(root))
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, filePaths(result))
	// Ignore-filtered paths leave no trace, unlike skips.
	assert.Empty(t, result.Skipped)
}

// Test include and exclude glob narrowing
func TestScan_IncludeExclude(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"a.go":      []byte("package a\n"),
		"b.md":      []byte("# b\n"),
		"sub/c.go":  []byte("package sub\n"),
		"a_test.go": []byte("package a\n"),
	})

	opts := testOptions(root)
	opts.Include = []string{"*.go"}
	opts.Exclude = []string{"*_test.go"}

	result, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "sub/c.go"}, filePaths(result))
}

// Test narrowing the scan to an explicit changed set
func TestScan_ChangedScopeFiles(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"a/one.go": []byte("package a\n"),
		"a/two.go": []byte("package a\n"),
		"b/one.go": []byte("package b\n"),
	})

	opts := testOptions(root)
	opts.ChangedPaths = []string{"./a/one.go"}

	result, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one.go"}, filePaths(result))
	assert.Equal(t, 1, result.ChangedCount)
	require.NotNil(t, result.ChangedScope)
	assert.Equal(t, ChangedScopeFiles, *result.ChangedScope)
}

// Test widening the changed set to whole modules
func TestScan_ChangedScopeModules(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"a/one.go": []byte("package a\n"),
		"a/two.go": []byte("package a\n"),
		"b/one.go": []byte("package b\n"),
	})

	opts := testOptions(root)
	opts.ChangedPaths = []string{"a/one.go"}
	opts.ChangedScope = ChangedScopeModules

	result, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one.go", "a/two.go"}, filePaths(result))
}

// Test module diffing against a previous scan artifact
func TestScan_ChangedModules(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{
		"a/one.go": []byte("package a\n"),
		"b/one.go": []byte("package b\n"),
		"c/one.go": []byte("package c\n"),
	})

	opts := testOptions(root)
	scanner := NewScanner()

	first, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)

	prevPath := filepath.Join(root, ".mapper", "prev-scan.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(prevPath), 0755))
	encoded, err := json.Marshal(first)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(prevPath, encoded, 0644))

	// Edit module b, delete module c.
	writeTree(t, root, map[string][]byte{"b/one.go": []byte("package b\nvar X = 2\n")})
	require.NoError(t, os.RemoveAll(filepath.Join(root, "c")))

	opts.PrevScanPath = prevPath
	second, err := scanner.Scan(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, second.ChangedModules)
	assert.Equal(t, []string{"c"}, second.RemovedModules)
	require.NotNil(t, second.PrevScan)
	assert.Equal(t, prevPath, *second.PrevScan)
}

// Test that an unknown hash mode or encoding fails before scanning
func TestScan_Validate(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	opts := testOptions(root)
	opts.HashMode = "bogus"
	_, err = NewScanner().Scan(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mode")

	opts = testOptions(root)
	opts.TokenizerKind = TokenizerTiktoken
	opts.EncodingName = "not-an-encoding"
	_, err = NewScanner().Scan(context.Background(), opts)
	require.Error(t, err)

	// The heuristic mode never needs an encoding.
	opts.TokenizerKind = TokenizerHeuristic
	_, err = NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
}

// Test symlinks are skipped unless followed
func TestScan_Symlinks(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{"real.go": []byte("package real\n")})
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "link.go")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	result, err := NewScanner().Scan(context.Background(), testOptions(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"real.go"}, filePaths(result))

	skip, ok := skipByPath(result, "link.go")
	require.True(t, ok)
	assert.Equal(t, models.SkipSymlink, skip.Reason)

	opts := testOptions(root)
	opts.FollowSymlinks = true
	followed, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"link.go", "real.go"}, filePaths(followed))
}

// Test that directory symlinks are traversed when following is enabled
func TestScan_SymlinkedDirectories(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)
	outside, err := os.MkdirTemp("", "scan_test_target")
	require.NoError(t, err)
	defer os.RemoveAll(outside)

	writeTree(t, root, map[string][]byte{"real.go": []byte("package real\n")})
	writeTree(t, outside, map[string][]byte{"inner.go": []byte("package inner\n")})
	if err := os.Symlink(outside, filepath.Join(root, "linked")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	// Without following, the directory symlink is reported, not traversed.
	result, err := NewScanner().Scan(context.Background(), testOptions(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"real.go"}, filePaths(result))
	skip, ok := skipByPath(result, "linked")
	require.True(t, ok)
	assert.Equal(t, models.SkipSymlink, skip.Reason)

	opts := testOptions(root)
	opts.FollowSymlinks = true
	followed, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"linked/inner.go", "real.go"}, filePaths(followed))
	assert.Empty(t, followed.Skipped)
}

// Test that symlink cycles terminate instead of recursing forever
func TestScan_SymlinkCycle(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{"sub/a.go": []byte("package sub\n")})
	if err := os.Symlink(root, filepath.Join(root, "sub", "loop")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	opts := testOptions(root)
	opts.FollowSymlinks = true
	result, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/a.go"}, filePaths(result))
}

// Test that a disabled cache leaves no artifact and reports itself
func TestScan_CacheDisabled(t *testing.T) {
	root, err := os.MkdirTemp("", "scan_test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	writeTree(t, root, map[string][]byte{"a.go": []byte("package a\n")})

	opts := testOptions(root)
	opts.CacheEnabled = false

	result, err := NewScanner().Scan(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, result.CacheEnabled)
	assert.Nil(t, result.CachePath)

	_, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(DefaultCachePath)))
	assert.True(t, os.IsNotExist(statErr))
}
