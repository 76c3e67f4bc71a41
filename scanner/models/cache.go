package models

// CacheVersion invalidates every previously written cache file when the
// entry layout changes.
const CacheVersion = 1

// CacheEntry is the persisted fingerprint for one file. An entry is trusted
// only while the on-disk mtime and size still match.
type CacheEntry struct {
	Mtime       float64 `json:"mtime"`
	Size        int64   `json:"size"`
	Tokens      int     `json:"tokens"`
	ContentHash string  `json:"content_hash,omitempty"`
}

// CacheFile is the on-disk cache format. Entries are not self-describing per
// configuration, so every header field must match the current run or the
// whole cache is discarded.
type CacheFile struct {
	Version       int                   `json:"version"`
	Encoding      string                `json:"encoding"`
	Tokenizer     string                `json:"tokenizer"`
	MaxFileTokens int                   `json:"max_file_tokens"`
	MaxFileSize   int64                 `json:"max_file_size"`
	HashMode      string                `json:"hash_mode"`
	CacheCompress bool                  `json:"cache_compress"`
	Files         map[string]CacheEntry `json:"files"`
}
