// Package pipeline orchestrates document ingestion: chunking, per-chunk
// extraction, the three merge phases, and progress reporting.
package pipeline

import "sync"

// Stage identifies one phase of an ingestion run.
type Stage string

// Ingestion stages, in pipeline order.
const (
	StageDocumentChunking    Stage = "DocumentChunking"
	StageProcessingChunks    Stage = "ProcessingChunks"
	StageStoringTextChunks   Stage = "StoringTextChunks"
	StageStoringChunkVectors Stage = "StoringChunkVectors"
	StageMergingEntities     Stage = "MergingEntities"
	StageMergingRelations    Stage = "MergingRelations"
	StageUpdatingStorage     Stage = "UpdatingStorage"
	StageStoringFullDocument Stage = "StoringFullDocument"
	StagePersisting          Stage = "Persisting"
	StageCompleted           Stage = "Completed"
)

// Countable reports whether the stage carries current/total progress.
// All other stages are marker-only.
func (s Stage) Countable() bool {
	switch s {
	case StageProcessingChunks, StageMergingEntities, StageMergingRelations:
		return true
	}

	return false
}

// Event is one progress notification. Current and Total are zero for
// marker-only stages.
type Event struct {
	DocID   string
	Stage   Stage
	Current int
	Total   int
}

// subscriberCapacity bounds each subscriber's event buffer.
const subscriberCapacity = 256

// Bus fans progress events out to subscribers. Each subscriber owns a
// bounded buffer; when it fills, the oldest buffered event is dropped so
// publishers never block on a slow consumer.
type Bus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewBus creates an empty progress bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel plus
// an unsubscribe function. The channel is closed on unsubscribe or when
// the bus closes.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberCapacity)

	if b.closed {
		close(ch)

		return ch, func() {}
	}

	b.subs[ch] = struct{}{}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for ch := range b.subs {
		for {
			select {
			case ch <- event:
			default:
				// Buffer full: drop the oldest event and retry.
				select {
				case <-ch:
				default:
				}

				continue
			}

			break
		}
	}
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for ch := range b.subs {
		close(ch)
	}

	b.subs = nil
}
