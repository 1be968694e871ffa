package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// streamBufferSize is the channel capacity for streamed completion fragments.
const streamBufferSize = 16

// OpenAIConfig configures the OpenAI-compatible client. BaseURL allows
// pointing at any compatible endpoint (Azure, local inference servers).
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	// EmbeddingDimension is the fixed vector dimension. Must match the
	// vector-store collection configuration.
	EmbeddingDimension int
}

// OpenAIClient implements Client and EmbeddingClient against an
// OpenAI-compatible API.
type OpenAIClient struct {
	api *openai.Client
	cfg OpenAIConfig
}

// NewOpenAIClient creates a client from the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		api: openai.NewClientWithConfig(apiCfg),
		cfg: cfg,
	}
}

// Generate implements Client.Generate.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty response")
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements Client.GenerateStream.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan string, <-chan error) {
	fragments := make(chan string, streamBufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errs)

		stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       c.cfg.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			errs <- fmt.Errorf("open completion stream: %w", err)

			return
		}
		defer stream.Close()

		for {
			resp, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				return
			}

			if recvErr != nil {
				errs <- fmt.Errorf("read completion stream: %w", recvErr)

				return
			}

			if len(resp.Choices) == 0 {
				continue
			}

			select {
			case fragments <- resp.Choices[0].Delta.Content:
			case <-ctx.Done():
				errs <- ctx.Err()

				return
			}
		}
	}()

	return fragments, errs
}

// ExtractEntitiesAndRelations implements Client.ExtractEntitiesAndRelations.
func (c *OpenAIClient) ExtractEntitiesAndRelations(ctx context.Context, text string, entityTypes []string, temperature float32, maxEntities, maxRelations int) (Extraction, error) {
	output, err := c.Generate(ctx, extractionPrompt(text, entityTypes), GenerateOptions{
		Temperature: temperature,
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("extract entities and relations: %w", err)
	}

	return parseExtraction(output, entityTypes, maxEntities, maxRelations), nil
}

// Summarise implements Client.Summarise.
func (c *OpenAIClient) Summarise(ctx context.Context, kind SummaryKind, name string, descriptions []string, targetTokens int) (string, error) {
	output, err := c.Generate(ctx, summaryPrompt(kind, name, descriptions, targetTokens), GenerateOptions{
		MaxTokens: targetTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarise %s %q: %w", kind, name, err)
	}

	return output, nil
}

// Embed implements EmbeddingClient.Embed.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// EmbedBatch implements EmbeddingClient.EmbedBatch.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// Dimension implements EmbeddingClient.Dimension.
func (c *OpenAIClient) Dimension() int {
	return c.cfg.EmbeddingDimension
}
