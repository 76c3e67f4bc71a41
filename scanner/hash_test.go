package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapperhq/mapper/scanner/models"
)

// Test that HashBytes is plain sha256 hex
func TestHashBytes(t *testing.T) {
	data := []byte("hello world")
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), HashBytes(data))
}

// Test fast digest stability and sensitivity
func TestFastDigest(t *testing.T) {
	a := []byte("some file content that is short")
	assert.Equal(t, FastDigest(a), FastDigest(a))
	assert.NotEqual(t, FastDigest(a), FastDigest([]byte("some file content that differs")))

	// Large inputs mix in size, head and tail.
	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = byte(i % 251)
	}
	digest := FastDigest(big)

	// A change in the untouched middle region is invisible to the fast mode.
	middle := make([]byte, len(big))
	copy(middle, big)
	middle[len(big)/2] ^= 0xff
	assert.Equal(t, digest, FastDigest(middle))

	// A change in the tail is not.
	tail := make([]byte, len(big))
	copy(tail, big)
	tail[len(big)-1] ^= 0xff
	assert.NotEqual(t, digest, FastDigest(tail))
}

// Test that scan hash ignores the incoming record order
func TestScanHash_OrderIndependent(t *testing.T) {
	a := models.FileRecord{Path: "a.go", Tokens: 10, SizeBytes: 40, Mtime: 1700000000.5}
	b := models.FileRecord{Path: "b.go", Tokens: 20, SizeBytes: 80, Mtime: 1700000001.5}
	c := models.FileRecord{Path: "c/d.go", Tokens: 5, SizeBytes: 20, Mtime: 1700000002.5, ContentHash: "abc"}

	h1 := ScanHash([]models.FileRecord{a, b, c})
	h2 := ScanHash([]models.FileRecord{c, a, b})
	assert.Equal(t, h1, h2)

	// Any fingerprint field change moves the hash.
	edited := b
	edited.Tokens++
	assert.NotEqual(t, h1, ScanHash([]models.FileRecord{a, edited, c}))

	touched := b
	touched.Mtime += 1
	assert.NotEqual(t, h1, ScanHash([]models.FileRecord{a, touched, c}))
}

func TestModuleLabel(t *testing.T) {
	assert.Equal(t, "src", ModuleLabel("src/app/main.go", 1))
	assert.Equal(t, "src/app", ModuleLabel("src/app/main.go", 2))
	assert.Equal(t, ".", ModuleLabel("README.md", 1))
	assert.Equal(t, "src/app", ModuleLabel("src/app/main.go", 99))
}

// Test module hashes isolate unrelated modules
func TestModuleHashes_Isolation(t *testing.T) {
	files := []models.FileRecord{
		{Path: "a/one.go", Tokens: 1, SizeBytes: 4, Mtime: 1},
		{Path: "a/two.go", Tokens: 2, SizeBytes: 8, Mtime: 2},
		{Path: "b/one.go", Tokens: 3, SizeBytes: 12, Mtime: 3},
	}
	before := ModuleHashes(files, 1)
	require.Len(t, before, 2)

	edited := make([]models.FileRecord, len(files))
	copy(edited, files)
	edited[2].Tokens = 99
	edited[2].Mtime = 9

	after := ModuleHashes(edited, 1)
	assert.Equal(t, before["a"], after["a"])
	assert.NotEqual(t, before["b"], after["b"])
}

// Test the content-hash vs fallback-tuple digest inputs
func TestModuleHashes_ContentHashPreferred(t *testing.T) {
	withHash := []models.FileRecord{{Path: "a/one.go", Tokens: 1, SizeBytes: 4, Mtime: 1, ContentHash: "deadbeef"}}

	// Same hash with different mtime digests identically when the content
	// hash is present.
	touched := []models.FileRecord{{Path: "a/one.go", Tokens: 1, SizeBytes: 4, Mtime: 999, ContentHash: "deadbeef"}}
	assert.Equal(t, ModuleHashes(withHash, 1)["a"], ModuleHashes(touched, 1)["a"])

	// Without a content hash the mtime is part of the fallback tuple.
	noHash := []models.FileRecord{{Path: "a/one.go", Tokens: 1, SizeBytes: 4, Mtime: 1}}
	noHashTouched := []models.FileRecord{{Path: "a/one.go", Tokens: 1, SizeBytes: 4, Mtime: 999}}
	assert.NotEqual(t, ModuleHashes(noHash, 1)["a"], ModuleHashes(noHashTouched, 1)["a"])
}

func TestDiffModules(t *testing.T) {
	current := map[string]string{"a": "1", "b": "2x", "d": "4"}
	previous := map[string]string{"a": "1", "b": "2", "c": "3"}

	changed, removed := DiffModules(current, previous)
	assert.Equal(t, []string{"b"}, changed) // differs in both
	assert.Equal(t, []string{"c"}, removed) // only in previous
	// "d" is new, not changed.
	assert.NotContains(t, changed, "d")
}

func TestDiffModules_Empty(t *testing.T) {
	changed, removed := DiffModules(map[string]string{"a": "1"}, map[string]string{"a": "1"})
	assert.NotNil(t, changed)
	assert.NotNil(t, removed)
	assert.Empty(t, changed)
	assert.Empty(t, removed)
}
