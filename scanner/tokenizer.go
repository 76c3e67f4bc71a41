package scanner

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Tokenizer kinds. Exact mode counts with a subword encoder; heuristic mode
// approximates from byte length and is also the automatic fallback when the
// encoder fails mid-scan.
const (
	TokenizerTiktoken  = "tiktoken"
	TokenizerHeuristic = "heuristic"
)

// EncoderCache holds constructed subword encoders keyed by encoding name.
// Construction is expensive and encoders are reusable, so each scan run owns
// one cache and hands it to every worker instead of relying on process-global
// state.
type EncoderCache struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec
}

// NewEncoderCache returns an empty encoder cache.
func NewEncoderCache() *EncoderCache {
	return &EncoderCache{codecs: make(map[string]tokenizer.Codec)}
}

// Get returns the codec for an encoding name, constructing it on first use.
// An unknown name is an error; callers validating configuration before a
// scan treat it as fatal.
func (c *EncoderCache) Get(encodingName string) (tokenizer.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if codec, ok := c.codecs[encodingName]; ok {
		return codec, nil
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encodingName))
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encodingName, err)
	}
	c.codecs[encodingName] = codec
	return codec, nil
}

// HeuristicTokens approximates a token count as one token per four bytes,
// never less than one.
func HeuristicTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// CountTokens counts tokens in text. Exact mode falls back to the heuristic
// on any encoder failure rather than failing the file.
func (c *EncoderCache) CountTokens(text, tokenizerKind, encodingName string) int {
	if tokenizerKind != TokenizerTiktoken {
		return HeuristicTokens(text)
	}
	codec, err := c.Get(encodingName)
	if err != nil {
		return HeuristicTokens(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return HeuristicTokens(text)
	}
	return len(ids)
}
