// Package merge implements the three-phase knowledge-graph merge engine:
// entity merging, relation merging, and the per-document index update.
package merge

import (
	"errors"
	"strings"

	"github.com/lightrag-go/lightrag/internal/ids"
)

// ErrMissingDescription is reported when an entity or relation has no
// non-empty description left after deduplication. The affected record is
// skipped; merging continues for the others.
var ErrMissingDescription = errors.New("merge: no description available")

// ErrInternalInconsistency is reported when a KEEP skip expected an
// existing graph record that is missing.
var ErrInternalInconsistency = errors.New("merge: expected existing record is missing")

// Config holds the merge-engine tunables. All values are stable within a
// single ingestion.
type Config struct {
	// SummaryContextSize is the token budget for one summarisation call.
	SummaryContextSize int
	// SummaryMaxTokens is the joined-description token bound above which
	// the summariser must be invoked.
	SummaryMaxTokens int
	// SummaryLengthRecommended is the target token length for summaries.
	SummaryLengthRecommended int
	// ForceLLMSummaryOnMerge is the description count at or above which
	// the summariser must be invoked even when tokens fit.
	ForceLLMSummaryOnMerge int
	// MaxSourceIDsPerEntity bounds the source_id window on entity nodes.
	MaxSourceIDsPerEntity int
	// MaxSourceIDsPerRelation bounds the source_id window on edges.
	MaxSourceIDsPerRelation int
	// SourceIDsLimitMethod selects FIFO or KEEP windowing.
	SourceIDsLimitMethod Method
	// MaxFilePaths bounds the file_path list on nodes and edges.
	MaxFilePaths int
}

// ProgressFunc receives current/total merge progress.
type ProgressFunc func(current, total int)

// dedupe returns list with duplicates removed, preserving first-seen order.
func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))

	for _, item := range list {
		if _, ok := seen[item]; ok {
			continue
		}

		seen[item] = struct{}{}
		out = append(out, item)
	}

	return out
}

// splitSep splits a <SEP>-joined property value into its parts, dropping
// empties. An empty input yields nil.
func splitSep(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ids.Separator)
	out := parts[:0]

	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// joinSep joins parts with the <SEP> separator.
func joinSep(parts []string) string {
	return strings.Join(parts, ids.Separator)
}

// toSet builds a membership set from a list.
func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, item := range list {
		set[item] = struct{}{}
	}

	return set
}
