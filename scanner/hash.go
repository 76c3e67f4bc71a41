package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/mapperhq/mapper/scanner/models"
)

// fastChunk is how much of each end of a file the fast digest covers.
const fastChunk = 4096

// HashBytes returns the hex sha256 of the whole content. Used by full hash
// mode and for all aggregate digests.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FastDigest hashes the size plus the first and last 4KB of content. Cheap
// enough to run on every miss, strong enough for change detection across
// modules; not a cryptographic attestation of the full content.
func FastDigest(data []byte) string {
	h := xxh3.New()
	_, _ = h.WriteString(strconv.Itoa(len(data)))
	if len(data) <= fastChunk {
		_, _ = h.Write(data)
	} else {
		_, _ = h.Write(data[:fastChunk])
		if len(data) > 2*fastChunk {
			_, _ = h.Write(data[len(data)-fastChunk:])
		}
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}

// formatMtime renders an mtime for digest folding. The shortest round-trip
// form keeps the digest stable for any float the artifact can carry.
func formatMtime(mtime float64) string {
	return strconv.FormatFloat(mtime, 'g', -1, 64)
}

// ScanHash digests all file records sorted by path. It is a pure function
// of the record tuples: enumeration and worker completion order cannot leak
// into it.
func ScanHash(files []models.FileRecord) string {
	sorted := make([]models.FileRecord, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Path))
		h.Write([]byte(strconv.FormatInt(f.SizeBytes, 10)))
		h.Write([]byte(formatMtime(f.Mtime)))
		h.Write([]byte(strconv.Itoa(f.Tokens)))
		if f.ContentHash != "" {
			h.Write([]byte(f.ContentHash))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ModuleLabel truncates a path to its first depth segments. The root label
// for files without a parent directory is ".".
func ModuleLabel(relPath string, depth int) string {
	parts := strings.Split(relPath, "/")
	if len(parts) > depth {
		parts = parts[:depth]
	}
	label := strings.Join(parts, "/")
	if label == "" {
		return "."
	}
	return label
}

// ModuleHashes groups records by truncated path label and digests each
// group's sorted entries. With a content hash present only path+hash fold
// in; otherwise the size/mtime/tokens tuple stands in for content.
func ModuleHashes(files []models.FileRecord, depth int) map[string]string {
	groups := make(map[string][]models.FileRecord)
	for _, f := range files {
		label := ModuleLabel(f.Path, depth)
		groups[label] = append(groups[label], f)
	}

	hashes := make(map[string]string, len(groups))
	for label, entries := range groups {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
		h := sha256.New()
		for _, f := range entries {
			h.Write([]byte(f.Path))
			if f.ContentHash != "" {
				h.Write([]byte(f.ContentHash))
			} else {
				h.Write([]byte(strconv.FormatInt(f.SizeBytes, 10)))
				h.Write([]byte(formatMtime(f.Mtime)))
				h.Write([]byte(strconv.Itoa(f.Tokens)))
			}
		}
		hashes[label] = hex.EncodeToString(h.Sum(nil))
	}
	return hashes
}

// DiffModules compares current module hashes against a previous run's. A
// label present in both with a different digest is changed; a label present
// only before is removed. Labels new this run are visible in the current
// hashes and are not flagged separately.
func DiffModules(current, previous map[string]string) (changed, removed []string) {
	changed = []string{}
	removed = []string{}
	for label, digest := range current {
		if prev, ok := previous[label]; ok && prev != digest {
			changed = append(changed, label)
		}
	}
	for label := range previous {
		if _, ok := current[label]; !ok {
			removed = append(removed, label)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed
}
