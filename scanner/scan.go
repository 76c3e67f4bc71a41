package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mapperhq/mapper/scanner/models"
)

// Options configures a single scan run. Zero values are not meaningful;
// use DefaultOptions and override.
type Options struct {
	Root          string
	EncodingName  string
	TokenizerKind string
	MaxFileTokens int
	MaxFileSize   int64
	HashMode      string
	Workers       int

	UseGit         bool
	GitPathspec    bool
	FollowSymlinks bool

	Include []string
	Exclude []string

	ChangedPaths []string
	ChangedScope string // "files" or "modules"
	ChangedDepth int

	ChurnCommits     int
	EntrypointsLimit int
	TopFilesLimit    int
	ModuleDepth      int

	PrevScanPath string

	CacheEnabled  bool
	CachePath     string
	CacheCompress bool
}

// Changed-scope values for narrowing a scan to recently touched paths.
const (
	ChangedScopeFiles   = "files"
	ChangedScopeModules = "modules"
)

// DefaultOptions returns the defaults for a scan of root.
func DefaultOptions(root string) Options {
	return Options{
		Root:             root,
		EncodingName:     "cl100k_base",
		TokenizerKind:    TokenizerTiktoken,
		MaxFileTokens:    50000,
		MaxFileSize:      1_000_000,
		HashMode:         HashModeMtime,
		ChangedScope:     ChangedScopeFiles,
		ChangedDepth:     1,
		EntrypointsLimit: 20,
		TopFilesLimit:    20,
		ModuleDepth:      1,
		CacheEnabled:     true,
	}
}

// Scanner performs one scan per call. It owns the run's encoder cache so
// concurrent scans in one process never share encoder state implicitly.
type Scanner struct {
	encoders *EncoderCache
}

// NewScanner creates a scanner with a fresh encoder cache.
func NewScanner() *Scanner {
	return &Scanner{encoders: NewEncoderCache()}
}

// Validate fails fast on configuration that would silently corrupt a whole
// run, before any file is touched.
func (s *Scanner) Validate(opts Options) error {
	switch opts.HashMode {
	case HashModeMtime, HashModeFast, HashModeFull:
	default:
		return fmt.Errorf("unknown hash mode %q", opts.HashMode)
	}
	if opts.TokenizerKind == TokenizerTiktoken {
		if _, err := s.encoders.Get(opts.EncodingName); err != nil {
			return err
		}
	}
	return nil
}

// Scan runs the full pipeline: enumerate candidates, classify, consult the
// fingerprint cache, dispatch misses to the worker pool, aggregate, and
// persist the rewritten cache. Per-file problems surface only in the
// result's Skipped list.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*models.ScanResult, error) {
	start := time.Now()

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	if err := s.Validate(opts); err != nil {
		return nil, err
	}

	git := NewGit(root)
	gitUsed := opts.UseGit && git.Available() && git.IsRepo()
	gitPathspec := opts.GitPathspec && gitUsed

	ignores := NewIgnoreSet(root, !gitUsed, opts.Exclude)

	cachePath := opts.CachePath
	if cachePath == "" {
		cachePath = filepath.Join(root, filepath.FromSlash(DefaultCachePath))
	}
	cache := NewFingerprintCache(cachePath, opts.CacheEnabled, opts.CacheCompress,
		opts.EncodingName, opts.TokenizerKind, opts.MaxFileTokens, opts.MaxFileSize, opts.HashMode)
	cache.Load()

	changedSet := make(map[string]struct{}, len(opts.ChangedPaths))
	for _, p := range opts.ChangedPaths {
		if p != "" {
			changedSet[normalizeRel(p)] = struct{}{}
		}
	}
	changedLabels := make(map[string]struct{})
	if len(changedSet) > 0 && opts.ChangedScope == ChangedScopeModules {
		for p := range changedSet {
			changedLabels[ModuleLabel(p, opts.ChangedDepth)] = struct{}{}
		}
	}

	candidates := s.enumerate(root, git, &gitUsed, gitPathspec, ignores, opts, changedSet)

	files := []models.FileRecord{}
	skipped := []models.SkipRecord{}
	totalTokens := 0
	cacheHits := 0

	var tasks []Task
	taskMeta := make(map[string]models.CacheEntry)

	for _, rel := range candidates {
		if ignores.Match(rel) {
			continue
		}
		if len(changedSet) > 0 {
			if opts.ChangedScope == ChangedScopeFiles {
				if _, ok := changedSet[rel]; !ok {
					continue
				}
			} else if _, ok := changedLabels[ModuleLabel(rel, opts.ChangedDepth)]; !ok {
				continue
			}
		}
		if len(opts.Include) > 0 && !matchesAnyGlob(rel, opts.Include) {
			continue
		}
		if len(opts.Exclude) > 0 && matchesAnyGlob(rel, opts.Exclude) {
			continue
		}

		abs := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil {
			skipped = append(skipped, models.SkipRecord{Path: rel, Reason: models.SkipStatError})
			continue
		}
		if !opts.FollowSymlinks {
			if lstat, err := os.Lstat(abs); err == nil && lstat.Mode()&os.ModeSymlink != 0 {
				skipped = append(skipped, models.SkipRecord{Path: rel, Reason: models.SkipSymlink})
				continue
			}
		}
		if info.Size() > opts.MaxFileSize {
			skipped = append(skipped, models.SkipRecord{Path: rel, Reason: models.SkipTooLarge, SizeBytes: info.Size()})
			continue
		}
		if !IsTextFile(abs) {
			skipped = append(skipped, models.SkipRecord{Path: rel, Reason: models.SkipBinary})
			continue
		}

		mtime := statMtime(info.ModTime())
		entry, hit, needsRead := cache.Lookup(rel, info.Size(), mtime)
		if hit && !needsRead {
			cacheHits++
			contentHash := ""
			if opts.HashMode != HashModeMtime {
				contentHash = entry.ContentHash
			}
			record := models.FileRecord{
				Path:        rel,
				Tokens:      entry.Tokens,
				SizeBytes:   info.Size(),
				Mtime:       mtime,
				ContentHash: contentHash,
			}
			files = append(files, record)
			totalTokens += entry.Tokens
			cache.Record(rel, models.CacheEntry{
				Mtime:       mtime,
				Size:        info.Size(),
				Tokens:      entry.Tokens,
				ContentHash: contentHash,
			})
			continue
		}

		taskMeta[rel] = models.CacheEntry{Mtime: mtime, Size: info.Size()}
		tasks = append(tasks, Task{
			RelPath:       rel,
			AbsPath:       abs,
			EncodingName:  opts.EncodingName,
			TokenizerKind: opts.TokenizerKind,
			HashMode:      opts.HashMode,
			MaxTokens:     opts.MaxFileTokens,
		})
	}

	runner := NewRunner(opts.Workers, s.encoders)
	cacheMisses := len(tasks)
	for _, result := range runner.Run(ctx, tasks) {
		meta := taskMeta[result.Path]
		switch result.Kind {
		case models.ResultErrored:
			skipped = append(skipped, models.SkipRecord{Path: result.Path, Reason: result.Err})
		case models.ResultSkipped:
			record := models.SkipRecord{Path: result.Path, Reason: result.SkipReason}
			if result.SkipReason == models.SkipTooManyTokens {
				record.Tokens = result.Tokens
			}
			skipped = append(skipped, record)
		case models.ResultTokenized:
			files = append(files, models.FileRecord{
				Path:        result.Path,
				Tokens:      result.Tokens,
				SizeBytes:   meta.Size,
				Mtime:       meta.Mtime,
				ContentHash: result.ContentHash,
			})
			totalTokens += result.Tokens
			cache.Record(result.Path, models.CacheEntry{
				Mtime:       meta.Mtime,
				Size:        meta.Size,
				Tokens:      result.Tokens,
				ContentHash: result.ContentHash,
			})
		}
	}

	// Worker completion order must not leak into the artifact.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })

	fileSet := make(map[string]struct{}, len(files))
	for _, f := range files {
		fileSet[f.Path] = struct{}{}
	}

	moduleHashes := ModuleHashes(files, opts.ModuleDepth)
	var changedModules, removedModules []string
	var prevScan *string
	if opts.PrevScanPath != "" {
		prevScan = &opts.PrevScanPath
		changedModules, removedModules = DiffModules(moduleHashes, loadPrevModuleHashes(opts.PrevScanPath))
	}

	result := &models.ScanResult{
		Root:        root,
		Files:       files,
		Directories: Directories(files),
		TotalTokens: totalTokens,
		TotalFiles:  len(files),
		Skipped:     skipped,

		CacheHits:     cacheHits,
		CacheMisses:   cacheMisses,
		CacheEnabled:  cache.Enabled(),
		CacheCompress: cache.Compressed(),

		ScanHash:      ScanHash(files),
		ScanCreatedAt: time.Now().UTC().Format("2006-01-02T15:04:05Z"),

		GitUsed:      gitUsed,
		GitAvailable: git.Available(),
		GitRepo:      git.IsRepo(),

		Workers:      runner.Workers(),
		Tokenizer:    opts.TokenizerKind,
		HashMode:     opts.HashMode,
		ChurnCommits: opts.ChurnCommits,

		ChangedCount: len(changedSet),

		Entrypoints:      Entrypoints(files, opts.EntrypointsLimit),
		EntrypointsLimit: opts.EntrypointsLimit,
		TopFiles:         TopFiles(files, opts.TopFilesLimit),
		TopFilesLimit:    opts.TopFilesLimit,
		Churn:            git.Churn(opts.ChurnCommits, fileSet),

		ModuleDepth:    opts.ModuleDepth,
		ModuleHashes:   moduleHashes,
		ChangedModules: changedModules,
		RemovedModules: removedModules,
		PrevScan:       prevScan,

		ElapsedMs: time.Since(start).Milliseconds(),
	}
	if gitUsed {
		result.GitHead = git.Head()
		result.GitBranch = git.Branch()
		result.GitDirty = git.Dirty()
		result.GitPathspec = &gitPathspec
	}
	if cache.Enabled() {
		p := cache.Path()
		result.CachePath = &p
	}
	if len(changedSet) > 0 {
		scope := opts.ChangedScope
		depth := opts.ChangedDepth
		result.ChangedScope = &scope
		result.ChangedDepth = &depth
	}

	if err := cache.Save(); err != nil {
		// A cache write failure degrades the next run, not this one.
		fmt.Fprintf(os.Stderr, "warning: failed to save scan cache: %v\n", err)
	}

	return result, nil
}

// enumerate picks the candidate strategy. A git listing failure clears
// gitUsed and falls back to the filesystem walk.
func (s *Scanner) enumerate(root string, git *Git, gitUsed *bool, gitPathspec bool, ignores *IgnoreSet, opts Options, changedSet map[string]struct{}) []string {
	if *gitUsed && len(changedSet) > 0 && opts.ChangedScope == ChangedScopeFiles {
		// Changed-files scope already names the candidates exactly.
		paths := make([]string, 0, len(changedSet))
		for p := range changedSet {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		return paths
	}
	if *gitUsed {
		var specs []string
		if gitPathspec {
			specs = BuildPathspec(opts.Include, opts.Exclude)
		}
		paths, err := enumerateGit(git, specs)
		if err == nil {
			return paths
		}
		*gitUsed = false
	}
	return enumerateFS(root, ignores, opts.FollowSymlinks)
}

// matchesAnyGlob applies user include/exclude globs. Unlike ignore
// patterns these are not path-aware: * crosses directory separators, so
// "*.go" matches at any depth.
func matchesAnyGlob(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if wildcardMatch(rel, pattern) {
			return true
		}
	}
	return false
}

// wildcardMatch matches pattern against s with * spanning any run of
// characters and ? matching exactly one.
func wildcardMatch(s, pattern string) bool {
	var si, pi int
	starP, starS := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			si++
			pi++
		case pi < len(pattern) && pattern[pi] == '*':
			starP, starS = pi, si
			pi++
		case starP >= 0:
			starS++
			si = starS
			pi = starP + 1
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// statMtime converts a modification time to float seconds, the form the
// cache and artifact persist.
func statMtime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// loadPrevModuleHashes pulls module_hashes out of a previous scan artifact.
// Any failure yields an empty map, which diffs as "everything new".
func loadPrevModuleHashes(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]string{}
	}
	var prev struct {
		ModuleHashes map[string]string `json:"module_hashes"`
	}
	if err := json.Unmarshal(data, &prev); err != nil || prev.ModuleHashes == nil {
		return map[string]string{}
	}
	return prev.ModuleHashes
}
