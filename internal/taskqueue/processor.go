package taskqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lightrag-go/lightrag/internal/pipeline"
)

// defaultPollInterval is the idle sleep between queue polls.
const defaultPollInterval = 5 * time.Second

// Ingestor runs one document ingestion. Implemented by the pipeline
// orchestrator.
type Ingestor interface {
	Insert(ctx context.Context, content, filePath, docID string) (string, error)
}

// Processor is the single-slot background worker: it drains the queue one
// task at a time, forwarding ingestion progress into task records.
type Processor struct {
	queue        *Queue
	ingestor     Ingestor
	bus          *pipeline.Bus
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewProcessor creates a processor. A non-positive pollInterval falls
// back to five seconds.
func NewProcessor(queue *Queue, ingestor Ingestor, bus *pipeline.Bus, pollInterval time.Duration, logger *slog.Logger) *Processor {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		queue:        queue,
		ingestor:     ingestor,
		bus:          bus,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run processes tasks until ctx is cancelled. On start, tasks left in
// Processing by a previous run are reset to Pending.
func (p *Processor) Run(ctx context.Context) error {
	reset, err := p.queue.ResetProcessing()
	if err != nil {
		return err
	}

	if reset > 0 {
		p.logger.Info("reset interrupted tasks to pending", "count", reset)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		task, ok, err := p.queue.NextPending()
		if err != nil {
			return err
		}

		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pollInterval):
			}

			continue
		}

		p.processTask(ctx, task)
	}
}

// processTask runs one task through the ingestor, translating progress
// events into queue updates. A cancellation caused by processor shutdown
// resets the task to Pending; any other failure marks it Failed.
func (p *Processor) processTask(ctx context.Context, task Task) {
	err := p.queue.UpdateStatus(task.TaskID, StatusProcessing, "")
	if err != nil {
		p.logger.Error("failed to mark task processing", "task_id", task.TaskID, "err", err)

		return
	}

	var (
		events      <-chan pipeline.Event
		unsubscribe func()
		forwarded   sync.WaitGroup
	)

	if p.bus != nil {
		events, unsubscribe = p.bus.Subscribe()

		forwarded.Add(1)

		go func() {
			defer forwarded.Done()

			p.forwardProgress(task, events)
		}()
	}

	_, insertErr := p.ingestor.Insert(ctx, task.Content, task.FilePath, task.RAGDocumentID)

	if unsubscribe != nil {
		unsubscribe()
		forwarded.Wait()
	}

	switch {
	case insertErr == nil:
		err = p.queue.UpdateStatus(task.TaskID, StatusCompleted, "")
	case ctx.Err() != nil:
		// Shutdown: hand the task back so the next run retries it.
		p.logger.Info("ingestion interrupted by shutdown, re-queueing task", "task_id", task.TaskID)

		err = p.queue.UpdateStatus(task.TaskID, StatusPending, "")
	default:
		p.logger.Error("ingestion failed", "task_id", task.TaskID, "err", insertErr)

		err = p.queue.UpdateStatus(task.TaskID, StatusFailed, insertErr.Error())
	}

	if err != nil {
		p.logger.Error("failed to record task outcome", "task_id", task.TaskID, "err", err)
	}
}

// forwardProgress translates ingestion events for the task's document
// into queue progress updates until the event channel closes. Countable
// stages become a 0-100 percent; marker stages advance the stage only.
func (p *Processor) forwardProgress(task Task, events <-chan pipeline.Event) {
	for event := range events {
		if event.DocID != "" && event.DocID != task.RAGDocumentID {
			continue
		}

		var progress *int

		if event.Stage.Countable() && event.Total > 0 {
			percent := event.Current * 100 / event.Total
			progress = &percent
		}

		err := p.queue.UpdateProgress(task.TaskID, string(event.Stage), progress)
		if err != nil {
			p.logger.Warn("failed to update task progress", "task_id", task.TaskID, "err", err)
		}
	}
}
