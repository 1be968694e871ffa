package merge_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/lightrag-go/lightrag/internal/ids"
	"github.com/lightrag-go/lightrag/internal/llm"
)

// stubLLM joins summarise inputs deterministically so tests can assert on
// merged output without a model.
type stubLLM struct {
	summariseCalls int
}

func (s *stubLLM) Generate(context.Context, string, llm.GenerateOptions) (string, error) {
	return "", nil
}

func (s *stubLLM) GenerateStream(context.Context, string, llm.GenerateOptions) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errs := make(chan error)
	close(fragments)
	close(errs)

	return fragments, errs
}

func (s *stubLLM) ExtractEntitiesAndRelations(context.Context, string, []string, float32, int, int) (llm.Extraction, error) {
	return llm.Extraction{}, nil
}

func (s *stubLLM) Summarise(_ context.Context, _ llm.SummaryKind, _ string, descriptions []string, _ int) (string, error) {
	s.summariseCalls++

	return "summary: " + strings.Join(descriptions, "; "), nil
}

// stubEmbedder returns deterministic vectors and counts batch calls.
type stubEmbedder struct {
	dim        int
	batchCalls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.batchCalls++

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, s.dim)
		for j := range vec {
			vec[j] = 1
		}

		vectors[i] = vec
	}

	return vectors, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

// chunkIDFor builds distinct chunk ids for tests.
func chunkIDFor(n int) string {
	return ids.ForChunk(fmt.Sprintf("content-%d", n))
}
