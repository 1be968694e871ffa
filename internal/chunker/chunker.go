// Package chunker splits documents into token-bounded, content-addressed
// fragments using a sliding token window or a caller-provided delimiter.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lightrag-go/lightrag/internal/ids"
	"github.com/lightrag-go/lightrag/internal/tokenizer"
)

// ErrChunkTooLarge is returned in delimiter-only mode when a split exceeds
// the configured chunk token size.
var ErrChunkTooLarge = errors.New("chunker: split exceeds chunk token size")

// Chunk is a token-bounded slice of a document. Its id is derived solely
// from its content, so identical fragments across documents share an id.
type Chunk struct {
	// ID is the content-addressed chunk id ("chunk-" + MD5).
	ID string
	// Content is the decoded, whitespace-trimmed text of the window.
	Content string
	// Tokens is the token count of Content.
	Tokens int
	// OrderIndex is the position of the chunk within its document.
	OrderIndex int
	// DocID is the id of the source document.
	DocID string
	// FilePath is the origin path of the source document.
	FilePath string
}

// Chunker splits text into overlapping token windows.
type Chunker struct {
	tok       tokenizer.Tokenizer
	tokenSize int
	overlap   int
}

// New creates a chunker with the given window size and overlap.
// Requires 0 <= overlap < tokenSize.
func New(tok tokenizer.Tokenizer, tokenSize, overlap int) (*Chunker, error) {
	if tokenSize <= 0 {
		return nil, fmt.Errorf("chunker: token size must be positive, got %d", tokenSize)
	}

	if overlap < 0 || overlap >= tokenSize {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", tokenSize, overlap)
	}

	return &Chunker{tok: tok, tokenSize: tokenSize, overlap: overlap}, nil
}

// Chunk splits content into an ordered list of chunks.
//
// With an empty splitBy, the default token sliding window is used. With a
// delimiter, the content is split first; when splitByOnly is set every
// split must already fit in the window or ErrChunkTooLarge is returned,
// otherwise over-size splits are further sliced by the sliding window.
func (c *Chunker) Chunk(content, docID, filePath, splitBy string, splitByOnly bool) ([]Chunk, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	if splitBy == "" {
		chunks := c.slidingWindow(content)
		c.stamp(chunks, docID, filePath)

		return chunks, nil
	}

	chunks, err := c.splitByCharacter(content, splitBy, splitByOnly)
	if err != nil {
		return nil, err
	}

	c.stamp(chunks, docID, filePath)

	return chunks, nil
}

// slidingWindow emits windows of tokenSize tokens advancing by
// tokenSize-overlap. A final window whose remaining tokens fit inside the
// overlap is absorbed by the previous chunk rather than emitted.
func (c *Chunker) slidingWindow(content string) []Chunk {
	tokens := c.tok.Encode(content)
	if len(tokens) == 0 {
		return nil
	}

	step := c.tokenSize - c.overlap

	var chunks []Chunk

	for start := 0; start < len(tokens); start += step {
		remaining := len(tokens) - start
		if len(chunks) > 0 && remaining <= c.overlap {
			// The previous window already extends through the end of the
			// document, so these tokens are covered by its overlap region.
			break
		}

		end := min(start+c.tokenSize, len(tokens))

		text := strings.TrimSpace(c.tok.Decode(tokens[start:end]))
		if text == "" {
			continue
		}

		chunks = append(chunks, c.newChunk(text, len(chunks)))
	}

	return chunks
}

// splitByCharacter splits content by the delimiter. Over-size splits either
// fail (strict mode) or fall back to the sliding window.
func (c *Chunker) splitByCharacter(content, splitBy string, strict bool) ([]Chunk, error) {
	var chunks []Chunk

	for _, part := range strings.Split(content, splitBy) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		count := c.tok.CountTokens(part)

		if count <= c.tokenSize {
			chunks = append(chunks, c.newChunk(part, len(chunks)))

			continue
		}

		if strict {
			return nil, fmt.Errorf("%w: split has %d tokens, limit %d", ErrChunkTooLarge, count, c.tokenSize)
		}

		for _, sub := range c.slidingWindow(part) {
			sub.OrderIndex = len(chunks)
			chunks = append(chunks, sub)
		}
	}

	return chunks, nil
}

// newChunk builds a chunk for the given trimmed text.
func (c *Chunker) newChunk(text string, orderIndex int) Chunk {
	return Chunk{
		ID:         ids.ForChunk(text),
		Content:    text,
		Tokens:     c.tok.CountTokens(text),
		OrderIndex: orderIndex,
	}
}

// stamp attaches document identity to every chunk.
func (c *Chunker) stamp(chunks []Chunk, docID, filePath string) {
	for i := range chunks {
		chunks[i].DocID = docID
		chunks[i].FilePath = filePath
	}
}
