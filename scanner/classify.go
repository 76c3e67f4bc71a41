package scanner

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// sniffSize bounds how much of a file is read to decide text vs binary.
const sniffSize = 8192

var textExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".vue": true, ".svelte": true, ".html": true, ".htm": true, ".css": true,
	".scss": true, ".sass": true, ".less": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".xml": true, ".md": true, ".mdx": true,
	".txt": true, ".rst": true, ".sh": true, ".bash": true, ".zsh": true,
	".fish": true, ".ps1": true, ".bat": true, ".cmd": true, ".sql": true,
	".graphql": true, ".gql": true, ".proto": true, ".go": true, ".rs": true,
	".rb": true, ".php": true, ".java": true, ".kt": true, ".kts": true,
	".scala": true, ".clj": true, ".cljs": true, ".edn": true, ".ex": true,
	".exs": true, ".erl": true, ".hrl": true, ".hs": true, ".lhs": true,
	".ml": true, ".mli": true, ".fs": true, ".fsx": true, ".fsi": true,
	".cs": true, ".vb": true, ".swift": true, ".m": true, ".mm": true,
	".h": true, ".hpp": true, ".c": true, ".cpp": true, ".cc": true,
	".cxx": true, ".r": true, ".jl": true, ".lua": true, ".vim": true,
	".el": true, ".lisp": true, ".scm": true, ".rkt": true, ".zig": true,
	".nim": true, ".d": true, ".dart": true, ".v": true, ".sv": true,
	".vhd": true, ".vhdl": true, ".tf": true, ".hcl": true,
	".dockerfile": true, ".containerfile": true, ".makefile": true,
	".cmake": true, ".gradle": true, ".groovy": true, ".rake": true,
	".gemspec": true, ".podspec": true, ".cabal": true, ".nix": true,
	".dhall": true, ".jsonc": true, ".json5": true, ".cson": true,
	".ini": true, ".cfg": true, ".conf": true, ".config": true, ".env": true,
	".gitignore": true, ".gitattributes": true, ".editorconfig": true,
	".prettierrc": true, ".eslintrc": true, ".stylelintrc": true,
	".babelrc": true, ".nvmrc": true, ".ruby-version": true,
	".python-version": true, ".node-version": true, ".tool-versions": true,
}

var textNames = map[string]bool{
	"readme": true, "license": true, "licence": true, "changelog": true,
	"authors": true, "contributors": true, "copying": true,
	"dockerfile": true, "containerfile": true, "makefile": true,
	"rakefile": true, "gemfile": true, "procfile": true, "brewfile": true,
	"vagrantfile": true, "justfile": true, "taskfile": true,
}

// IsTextFile decides whether a file should be admitted for tokenization.
// Known text extensions and bare filenames pass without touching the file;
// everything else is sniffed: a NUL byte in the first 8KB means binary,
// otherwise the prefix must be valid UTF-8. Any read error classifies as
// binary so a broken file skips instead of aborting the scan.
func IsTextFile(absPath string) bool {
	ext := strings.ToLower(filepath.Ext(absPath))
	if textExtensions[ext] {
		return true
	}
	if textNames[strings.ToLower(filepath.Base(absPath))] {
		return true
	}

	f, err := os.Open(absPath)
	if err != nil {
		return false
	}
	defer f.Close()

	chunk := make([]byte, sniffSize)
	n, err := io.ReadFull(f, chunk)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false
	}
	chunk = chunk[:n]

	if bytes.IndexByte(chunk, 0) >= 0 {
		return false
	}
	return validUTF8Prefix(chunk, n == sniffSize)
}

// validUTF8Prefix reports whether b is valid UTF-8, tolerating a multi-byte
// rune cut off at the sniff boundary when truncated is set.
func validUTF8Prefix(b []byte, truncated bool) bool {
	if !truncated {
		return utf8.Valid(b)
	}
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}
