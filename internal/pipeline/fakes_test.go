package pipeline_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lightrag-go/lightrag/internal/llm"
)

// scriptedLLM returns pre-configured extractions keyed by chunk content
// and counts extraction calls.
type scriptedLLM struct {
	mu          sync.Mutex
	extractions map[string]llm.Extraction
	failOn      map[string]struct{}
	extracts    int
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		extractions: make(map[string]llm.Extraction),
		failOn:      make(map[string]struct{}),
	}
}

func (s *scriptedLLM) extractCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.extracts
}

func (s *scriptedLLM) Generate(context.Context, string, llm.GenerateOptions) (string, error) {
	return "", nil
}

func (s *scriptedLLM) GenerateStream(context.Context, string, llm.GenerateOptions) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errs := make(chan error)
	close(fragments)
	close(errs)

	return fragments, errs
}

func (s *scriptedLLM) ExtractEntitiesAndRelations(_ context.Context, text string, _ []string, _ float32, _, _ int) (llm.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.extracts++

	if _, fail := s.failOn[text]; fail {
		return llm.Extraction{}, fmt.Errorf("model refused %q", text)
	}

	return s.extractions[text], nil
}

func (s *scriptedLLM) Summarise(_ context.Context, _ llm.SummaryKind, _ string, descriptions []string, _ int) (string, error) {
	return "summary: " + strings.Join(descriptions, "; "), nil
}

// stubEmbedder returns deterministic vectors and counts calls.
type stubEmbedder struct {
	mu      sync.Mutex
	dim     int
	embeds  int
	batches int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.embeds++
	s.mu.Unlock()

	vec := make([]float32, s.dim)
	for i := range vec {
		vec[i] = 1
	}

	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()

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

func (s *stubEmbedder) embedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.embeds
}
