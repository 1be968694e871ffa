// Package tokenizertest provides a deterministic in-memory tokenizer for
// tests, avoiding the BPE dictionary download the real encoding needs.
package tokenizertest

import (
	"strings"
	"sync"
)

// WordTokenizer maps whitespace-separated words to sequential ids. It is
// deterministic for a given input order and safe for concurrent use.
type WordTokenizer struct {
	mu    sync.Mutex
	vocab map[string]int
	words []string
}

// NewWordTokenizer creates an empty word tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{vocab: make(map[string]int)}
}

// Encode splits text into words and returns one token id per word.
func (t *WordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tokens := make([]int, len(fields))

	for i, word := range fields {
		id, ok := t.vocab[word]
		if !ok {
			id = len(t.words)
			t.vocab[word] = id
			t.words = append(t.words, word)
		}

		tokens[i] = id
	}

	return tokens
}

// Decode joins the words for the given token ids with single spaces.
func (t *WordTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	words := make([]string, 0, len(tokens))

	for _, id := range tokens {
		if id >= 0 && id < len(t.words) {
			words = append(words, t.words[id])
		}
	}

	return strings.Join(words, " ")
}

// CountTokens returns the number of whitespace-separated words in text.
func (t *WordTokenizer) CountTokens(text string) int {
	return len(strings.Fields(text))
}
