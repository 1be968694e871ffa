package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightrag-go/lightrag/internal/chunker"
	"github.com/lightrag-go/lightrag/internal/tokenizer/tokenizertest"
)

// makeText produces a text of n distinct words.
func makeText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}

	return strings.Join(words, " ")
}

func TestChunk_SingleWindowWhenContentFits(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 100, 20)
	require.NoError(t, err)

	chunks, err := ch.Chunk(makeText(12), "doc-1", "a.txt", "", false)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, 12, chunks[0].Tokens)
	assert.Equal(t, 0, chunks[0].OrderIndex)
	assert.Equal(t, "doc-1", chunks[0].DocID)
	assert.Equal(t, "a.txt", chunks[0].FilePath)
}

func TestChunk_SlidingWindowCoversAllTokens(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 10, 3)
	require.NoError(t, err)

	text := makeText(25)

	chunks, err := ch.Chunk(text, "doc-1", "a.txt", "", false)
	require.NoError(t, err)

	// Windows: [0,10) [7,17) [14,24) [21,25). Final window has 4 tokens > overlap.
	require.Len(t, chunks, 4)

	// Concatenating windows minus overlaps reproduces the token sequence.
	var rebuilt []string

	for i, c := range chunks {
		words := strings.Fields(c.Content)
		if i > 0 {
			words = words[3:]
		}

		rebuilt = append(rebuilt, words...)
	}

	assert.Equal(t, strings.Fields(text), rebuilt)

	for _, c := range chunks {
		assert.Positive(t, c.Tokens)
	}
}

func TestChunk_TailMergedIntoPreviousWindow(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 10, 3)
	require.NoError(t, err)

	// 24 tokens: windows [0,10) [7,17) [14,24); next start 21 leaves 3
	// tokens <= overlap, absorbed by the [14,24) window.
	chunks, err := ch.Chunk(makeText(24), "doc-1", "a.txt", "", false)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, 10, chunks[2].Tokens)
	assert.True(t, strings.HasSuffix(chunks[2].Content, "w23"))
}

func TestChunk_IDsAreContentAddressed(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 100, 20)
	require.NoError(t, err)

	first, err := ch.Chunk("alpha beta gamma", "doc-1", "a.txt", "", false)
	require.NoError(t, err)

	second, err := ch.Chunk("alpha beta gamma", "doc-2", "b.txt", "", false)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[0].DocID, second[0].DocID)
}

func TestChunk_EmptyContent(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 10, 3)
	require.NoError(t, err)

	chunks, err := ch.Chunk("   \n\t  ", "doc-1", "a.txt", "", false)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_CharacterSplit(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 10, 3)
	require.NoError(t, err)

	text := "alpha beta\n\ngamma delta epsilon\n\n  \n\nzeta"

	chunks, err := ch.Chunk(text, "doc-1", "a.txt", "\n\n", false)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "alpha beta", chunks[0].Content)
	assert.Equal(t, "gamma delta epsilon", chunks[1].Content)
	assert.Equal(t, "zeta", chunks[2].Content)

	for i, c := range chunks {
		assert.Equal(t, i, c.OrderIndex)
	}
}

func TestChunk_CharacterSplitOnlyRejectsOversize(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 5, 1)
	require.NoError(t, err)

	text := makeText(8) // One split with 8 tokens > 5.

	_, err = ch.Chunk(text, "doc-1", "a.txt", "\n\n", true)
	require.ErrorIs(t, err, chunker.ErrChunkTooLarge)
}

func TestChunk_CharacterSplitFallsBackToWindow(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()
	ch, err := chunker.New(tok, 5, 1)
	require.NoError(t, err)

	text := "small part\n\n" + makeText(9)

	chunks, err := ch.Chunk(text, "doc-1", "a.txt", "\n\n", false)
	require.NoError(t, err)

	// "small part" stays whole; the 9-token split becomes windows [0,5) [4,9).
	require.Len(t, chunks, 3)
	assert.Equal(t, "small part", chunks[0].Content)
	assert.Equal(t, 5, chunks[1].Tokens)
	assert.Equal(t, 5, chunks[2].Tokens)

	for i, c := range chunks {
		assert.Equal(t, i, c.OrderIndex)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tok := tokenizertest.NewWordTokenizer()

	_, err := chunker.New(tok, 0, 0)
	require.Error(t, err)

	_, err = chunker.New(tok, 10, 10)
	require.Error(t, err)

	_, err = chunker.New(tok, 10, -1)
	require.Error(t, err)
}
