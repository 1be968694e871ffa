package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lightrag-go/lightrag/internal/llm"
	"github.com/lightrag-go/lightrag/internal/tokenizer"
)

// joinBaseCaseLen is the list length at or below which no further
// splitting happens and the base case decides between join and summary.
const joinBaseCaseLen = 2

// DescriptionMerger condenses a set of descriptions for one entity or
// relation into a single string. Small sets are joined verbatim; larger
// sets are map-reduce summarised under the configured token budget.
type DescriptionMerger struct {
	tok    tokenizer.Tokenizer
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

// NewDescriptionMerger creates a description merger.
func NewDescriptionMerger(tok tokenizer.Tokenizer, client llm.Client, cfg Config, logger *slog.Logger) *DescriptionMerger {
	if logger == nil {
		logger = slog.Default()
	}

	return &DescriptionMerger{tok: tok, client: client, cfg: cfg, logger: logger}
}

// Merge returns the merged description and whether the LLM was invoked.
func (m *DescriptionMerger) Merge(ctx context.Context, kind llm.SummaryKind, name string, descriptions []string) (string, bool, error) {
	if len(descriptions) == 0 {
		return "", false, nil
	}

	if len(descriptions) == 1 {
		return descriptions[0], false, nil
	}

	llmUsed := false

	for {
		total := m.totalTokens(descriptions)

		if total <= m.cfg.SummaryContextSize || len(descriptions) <= joinBaseCaseLen {
			if len(descriptions) < m.cfg.ForceLLMSummaryOnMerge && total < m.cfg.SummaryMaxTokens {
				return joinSep(descriptions), llmUsed, nil
			}

			merged, err := m.summarise(ctx, kind, name, descriptions)
			if err != nil {
				return "", llmUsed, err
			}

			return merged, true, nil
		}

		groups := m.pack(descriptions)

		next := make([]string, 0, len(groups))

		for _, group := range groups {
			if len(group) == 1 {
				next = append(next, group[0])

				continue
			}

			summary, err := m.summarise(ctx, kind, name, group)
			if err != nil {
				return "", llmUsed, err
			}

			llmUsed = true
			next = append(next, summary)
		}

		descriptions = next
	}
}

// pack groups descriptions into token-budgeted chunks. Every group holds
// at least two descriptions except when a single description alone
// exceeds the budget; when the packing buffer holds exactly one element
// and the next would overflow, the next is force-packed in so the round
// always shrinks the list.
func (m *DescriptionMerger) pack(descriptions []string) [][]string {
	budget := m.cfg.SummaryContextSize

	var groups [][]string

	var buf []string

	bufTokens := 0

	for _, d := range descriptions {
		tokens := m.tok.CountTokens(d)

		if len(buf) == 0 {
			if tokens > budget {
				m.logger.Warn("description alone exceeds summary context budget",
					"tokens", tokens, "budget", budget)
			}

			buf = []string{d}
			bufTokens = tokens

			continue
		}

		if bufTokens+tokens > budget {
			if len(buf) == 1 {
				buf = append(buf, d)
				groups = append(groups, buf)
				buf = nil
				bufTokens = 0

				continue
			}

			groups = append(groups, buf)
			buf = []string{d}
			bufTokens = tokens

			continue
		}

		buf = append(buf, d)
		bufTokens += tokens
	}

	if len(buf) > 0 {
		groups = append(groups, buf)
	}

	return groups
}

// summarise performs one LLM summarisation call.
func (m *DescriptionMerger) summarise(ctx context.Context, kind llm.SummaryKind, name string, descriptions []string) (string, error) {
	summary, err := m.client.Summarise(ctx, kind, name, descriptions, m.cfg.SummaryLengthRecommended)
	if err != nil {
		return "", fmt.Errorf("summarise %s %q: %w", kind, name, err)
	}

	return summary, nil
}

// totalTokens sums the token counts of all descriptions.
func (m *DescriptionMerger) totalTokens(descriptions []string) int {
	total := 0
	for _, d := range descriptions {
		total += m.tok.CountTokens(d)
	}

	return total
}

// collectDescriptions builds the merge input: existing descriptions first,
// then the new ones already sorted by the caller, deduplicated globally.
func collectDescriptions(existing string, incoming []string) []string {
	collected := splitSep(existing)
	collected = append(collected, incoming...)

	collected = dedupe(collected)

	out := collected[:0]

	for _, d := range collected {
		if d != "" {
			out = append(out, d)
		}
	}

	return out
}
