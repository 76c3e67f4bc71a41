package models

// FileRecord describes one admitted text file. Records are immutable once
// produced and are the unit every derived digest is computed from.
type FileRecord struct {
	Path        string  `json:"path"`
	Tokens      int     `json:"tokens"`
	SizeBytes   int64   `json:"size_bytes"`
	Mtime       float64 `json:"mtime"`
	ContentHash string  `json:"content_hash,omitempty"`
}

// SkipRecord describes a file that was admitted by the enumerator but could
// not be scanned. Paths filtered by ignore patterns are not recorded at all.
type SkipRecord struct {
	Path      string `json:"path"`
	Reason    string `json:"reason"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Tokens    int    `json:"tokens,omitempty"`
}

// Skip reasons surfaced in ScanResult.Skipped. Read and tokenizer failures
// carry the underlying error appended after the prefix.
const (
	SkipBinary        = "binary"
	SkipTooLarge      = "too_large"
	SkipSymlink       = "symlink"
	SkipTooManyTokens = "too_many_tokens"
	SkipStatError     = "stat_error"
	SkipReadError     = "read_error"
	SkipTokenError    = "token_error"
)

// Entrypoint is a file matching one of the conventional program-start
// naming patterns.
type Entrypoint struct {
	Path   string `json:"path"`
	Tokens int    `json:"tokens"`
	Reason string `json:"reason"`
}

// ChurnEntry counts how many recent commits touched a scanned path.
type ChurnEntry struct {
	Path    string `json:"path"`
	Commits int    `json:"commits"`
}

// ScanResult is the artifact a scan produces. It is written once per run and
// never mutated afterwards; downstream consumers read it as JSON.
type ScanResult struct {
	Root        string       `json:"root"`
	Files       []FileRecord `json:"files"`
	Directories []string     `json:"directories"`
	TotalTokens int          `json:"total_tokens"`
	TotalFiles  int          `json:"total_files"`
	Skipped     []SkipRecord `json:"skipped"`

	CacheHits     int     `json:"cache_hits"`
	CacheMisses   int     `json:"cache_misses"`
	CacheEnabled  bool    `json:"cache_enabled"`
	CachePath     *string `json:"cache_path"`
	CacheCompress bool    `json:"cache_compress"`

	ScanHash      string `json:"scan_hash"`
	ScanCreatedAt string `json:"scan_created_at"`

	GitUsed      bool    `json:"git_used"`
	GitHead      *string `json:"git_head"`
	GitBranch    *string `json:"git_branch"`
	GitDirty     *bool   `json:"git_dirty"`
	GitPathspec  *bool   `json:"git_pathspec"`
	GitAvailable bool    `json:"git_available"`
	GitRepo      bool    `json:"git_repo"`

	Workers      int    `json:"workers"`
	Tokenizer    string `json:"tokenizer"`
	HashMode     string `json:"hash_mode"`
	ChurnCommits int    `json:"churn_commits"`

	ChangedScope *string `json:"changed_scope"`
	ChangedDepth *int    `json:"changed_depth"`
	ChangedCount int     `json:"changed_count"`

	Entrypoints      []Entrypoint `json:"entrypoints"`
	EntrypointsLimit int          `json:"entrypoints_limit"`
	TopFiles         []FileRecord `json:"top_files"`
	TopFilesLimit    int          `json:"top_files_limit"`
	Churn            []ChurnEntry `json:"churn"`

	ModuleDepth    int               `json:"module_depth"`
	ModuleHashes   map[string]string `json:"module_hashes"`
	ChangedModules []string          `json:"changed_modules"`
	RemovedModules []string          `json:"removed_modules"`
	PrevScan       *string           `json:"prev_scan"`

	ElapsedMs int64 `json:"elapsed_ms"`
}
