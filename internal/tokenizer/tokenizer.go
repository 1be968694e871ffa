// Package tokenizer provides the deterministic text/token-id mapping used
// for chunk windowing and summary budgeting.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Tokenizer converts between text and token ids. Implementations must be
// deterministic, stateless, and safe for concurrent use. Empty input yields
// an empty token list.
type Tokenizer interface {
	// Encode converts text to a sequence of token ids.
	Encode(text string) []int
	// Decode converts a sequence of token ids back to text.
	Decode(tokens []int) string
	// CountTokens returns the number of tokens in text.
	CountTokens(text string) int
}

// Tiktoken is a Tokenizer backed by a tiktoken BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken creates a tokenizer for the named encoding (e.g. "cl100k_base").
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}

	return &Tiktoken{enc: enc}, nil
}

// Encode implements Tokenizer.Encode.
func (t *Tiktoken) Encode(text string) []int {
	if text == "" {
		return nil
	}

	return t.enc.Encode(text, nil, nil)
}

// Decode implements Tokenizer.Decode.
func (t *Tiktoken) Decode(tokens []int) string {
	if len(tokens) == 0 {
		return ""
	}

	return t.enc.Decode(tokens)
}

// CountTokens implements Tokenizer.CountTokens.
func (t *Tiktoken) CountTokens(text string) int {
	return len(t.Encode(text))
}
