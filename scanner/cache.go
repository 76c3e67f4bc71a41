package scanner

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mapperhq/mapper/scanner/models"
)

// Hash modes govern how strongly a cache hit attests content equality.
const (
	HashModeMtime = "mtime" // mtime+size only, never re-reads
	HashModeFast  = "fast"  // head/tail digest, detects change, not integrity
	HashModeFull  = "full"  // whole-content digest, always re-reads
)

// DefaultCachePath is where the fingerprint cache lives relative to the
// scan root.
const DefaultCachePath = ".mapper/scan-cache.json"

// FingerprintCache is the persisted path fingerprint store. It is loaded
// once at scan start, consulted per candidate, and rewritten wholesale at
// scan end so that entries for deleted files disappear.
type FingerprintCache struct {
	path     string
	enabled  bool
	compress bool
	header   models.CacheFile

	entries map[string]models.CacheEntry // as loaded from disk
	next    map[string]models.CacheEntry // entries observed this run
}

// NewFingerprintCache builds a cache bound to the current run configuration.
// Every header field participates in the validity check on load.
func NewFingerprintCache(path string, enabled, compress bool, encodingName, tokenizerKind string, maxFileTokens int, maxFileSize int64, hashMode string) *FingerprintCache {
	// A .gz cache path implies compression regardless of the flag.
	if strings.HasSuffix(path, ".gz") {
		compress = true
	}
	return &FingerprintCache{
		path:     path,
		enabled:  enabled,
		compress: compress,
		header: models.CacheFile{
			Version:       models.CacheVersion,
			Encoding:      encodingName,
			Tokenizer:     tokenizerKind,
			MaxFileTokens: maxFileTokens,
			MaxFileSize:   maxFileSize,
			HashMode:      hashMode,
			CacheCompress: compress,
		},
		entries: make(map[string]models.CacheEntry),
		next:    make(map[string]models.CacheEntry),
	}
}

// Load reads the cache file. A missing file, a decode failure, or any header
// field that does not match the current run leaves the cache empty; a stale
// cache is never partially trusted.
func (c *FingerprintCache) Load() {
	if !c.enabled {
		return
	}
	f, err := os.Open(c.path)
	if err != nil {
		return
	}
	defer f.Close()

	var r io.Reader = f
	if c.compress {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return
		}
		defer gz.Close()
		r = gz
	}

	var data models.CacheFile
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return
	}
	if data.Version != c.header.Version ||
		data.Encoding != c.header.Encoding ||
		data.Tokenizer != c.header.Tokenizer ||
		data.MaxFileTokens != c.header.MaxFileTokens ||
		data.MaxFileSize != c.header.MaxFileSize ||
		data.HashMode != c.header.HashMode ||
		data.CacheCompress != c.header.CacheCompress ||
		data.Files == nil {
		return
	}
	c.entries = data.Files
}

// Lookup applies the hit test for a candidate. hit means the stored token
// count can be reused without reading the file; needsRead means the file
// must still be read this run, either because it missed or because the
// active hash mode requires content (full mode always re-reads, fast mode
// re-reads to backfill an entry that predates hashing).
func (c *FingerprintCache) Lookup(relPath string, size int64, mtime float64) (entry models.CacheEntry, hit, needsRead bool) {
	entry, ok := c.entries[relPath]
	hit = ok && entry.Mtime == mtime && entry.Size == size
	needsRead = !hit ||
		c.header.HashMode == HashModeFull ||
		(c.header.HashMode != HashModeMtime && ok && entry.ContentHash == "")
	return entry, hit, needsRead
}

// Record notes the fingerprint produced for a path this run. Only recorded
// paths survive the end-of-scan rewrite.
func (c *FingerprintCache) Record(relPath string, entry models.CacheEntry) {
	if !c.enabled {
		return
	}
	c.next[relPath] = entry
}

// Save rewrites the cache file from exactly the entries recorded this run.
func (c *FingerprintCache) Save() error {
	if !c.enabled {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data := c.header
	data.Files = c.next
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	defer f.Close()

	if c.compress {
		gz := gzip.NewWriter(f)
		if _, err := gz.Write(encoded); err != nil {
			return fmt.Errorf("failed to write cache file: %w", err)
		}
		return gz.Close()
	}
	_, err = f.Write(encoded)
	return err
}

// Path returns the cache file location.
func (c *FingerprintCache) Path() string { return c.path }

// Enabled reports whether caching is active for this run.
func (c *FingerprintCache) Enabled() bool { return c.enabled }

// Compressed reports whether the cache file is gzip-compressed.
func (c *FingerprintCache) Compressed() bool { return c.compress }
