package taskqueue

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lightrag-go/lightrag/internal/ids"
)

// StopMessage is the failure message written by StopAll.
const StopMessage = "stopped"

// changeBufferCapacity bounds each change subscriber's buffer.
const changeBufferCapacity = 64

// Queue is the in-memory task queue backed by a StateStore. A single
// mutex guards the task map; state-file writes happen outside that lock
// so status reads never wait on disk I/O.
type Queue struct {
	store      *StateStore
	maxRetries int
	logger     *slog.Logger

	mu    sync.Mutex
	tasks map[string]Task

	loadMu sync.Mutex
	loaded bool

	subMu sync.Mutex
	subs  map[chan Task]struct{}
}

// NewQueue creates a queue over the given state store. The persisted task
// list is read lazily on first access.
func NewQueue(store *StateStore, maxRetries int, logger *slog.Logger) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		store:      store,
		maxRetries: maxRetries,
		logger:     logger,
		tasks:      make(map[string]Task),
		subs:       make(map[chan Task]struct{}),
	}
}

// Subscribe registers a change listener. Every queue mutation delivers
// the affected task's snapshot; a slow listener loses the oldest events.
func (q *Queue) Subscribe() (<-chan Task, func()) {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	ch := make(chan Task, changeBufferCapacity)
	q.subs[ch] = struct{}{}

	unsubscribe := func() {
		q.subMu.Lock()
		defer q.subMu.Unlock()

		if _, ok := q.subs[ch]; ok {
			delete(q.subs, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// publish delivers a task snapshot to every subscriber without blocking.
func (q *Queue) publish(task Task) {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	for ch := range q.subs {
		for {
			select {
			case ch <- task:
			default:
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

// ensureLoaded reads the state file into memory on first access.
func (q *Queue) ensureLoaded() error {
	q.loadMu.Lock()
	defer q.loadMu.Unlock()

	if q.loaded {
		return nil
	}

	tasks, err := q.store.Load()
	if err != nil {
		return err
	}

	q.mu.Lock()
	for _, t := range tasks {
		q.tasks[t.TaskID] = t
	}
	q.mu.Unlock()

	q.loaded = true

	return nil
}

// snapshot returns all live tasks, taken under the queue lock.
func (q *Queue) snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks
}

// persist writes the current task set to the state store.
func (q *Queue) persist() error {
	return q.store.Save(q.snapshot())
}

// Enqueue inserts a new Pending task for the document and returns its id.
func (q *Queue) Enqueue(documentID int64, content, filePath string) (string, error) {
	err := q.ensureLoaded()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()

	task := Task{
		TaskID:        ids.ForTask(fmt.Sprintf("%d%s%d", documentID, content, now.UnixNano())),
		DocumentID:    documentID,
		RAGDocumentID: ids.ForDocument(content),
		Content:       content,
		FilePath:      filePath,
		Status:        StatusPending,
		CreatedAt:     now,
		MaxRetries:    q.maxRetries,
	}

	q.mu.Lock()
	q.tasks[task.TaskID] = task
	q.mu.Unlock()

	persistErr := q.persist()
	if persistErr != nil {
		return "", persistErr
	}

	q.publish(task)

	return task.TaskID, nil
}

// NextPending returns the Pending task with the lowest priority, ties
// broken by earliest creation time.
func (q *Queue) NextPending() (Task, bool, error) {
	err := q.ensureLoaded()
	if err != nil {
		return Task{}, false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		best  Task
		found bool
	)

	for _, t := range q.tasks {
		if t.Status != StatusPending {
			continue
		}

		if !found || t.Priority < best.Priority ||
			(t.Priority == best.Priority && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
			found = true
		}
	}

	return best, found, nil
}

// Get returns the task by id.
func (q *Queue) Get(taskID string) (Task, bool, error) {
	err := q.ensureLoaded()
	if err != nil {
		return Task{}, false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]

	return task, ok, nil
}

// List returns all live tasks ordered by creation time.
func (q *Queue) List() ([]Task, error) {
	err := q.ensureLoaded()
	if err != nil {
		return nil, err
	}

	return q.snapshot(), nil
}

// UpdateStatus transitions the task. Reaching Completed or Failed stamps
// completedAt and removes the task from both memory and disk; reaching
// Processing stamps startedAt when unset.
func (q *Queue) UpdateStatus(taskID string, status Status, errorMessage string) error {
	err := q.ensureLoaded()
	if err != nil {
		return err
	}

	q.mu.Lock()

	task, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()

		return fmt.Errorf("task %s not found", taskID)
	}

	now := time.Now().UTC()
	task.Status = status
	task.ErrorMessage = errorMessage

	switch status {
	case StatusProcessing:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}

		q.tasks[taskID] = task
	case StatusCompleted, StatusFailed:
		task.CompletedAt = &now
		delete(q.tasks, taskID)
	case StatusPending:
		task.StartedAt = nil
		task.CurrentStage = ""
		task.Progress = 0

		q.tasks[taskID] = task
	default:
		q.tasks[taskID] = task
	}

	q.mu.Unlock()

	persistErr := q.persist()
	if persistErr != nil {
		return persistErr
	}

	q.publish(task)

	return nil
}

// UpdateProgress advances the task's stage and optional percent progress.
// A nil progress moves the stage only; values are clamped to [0,100].
// Updates for unknown (already finished) tasks are ignored.
func (q *Queue) UpdateProgress(taskID, stage string, progress *int) error {
	err := q.ensureLoaded()
	if err != nil {
		return err
	}

	q.mu.Lock()

	task, ok := q.tasks[taskID]
	if !ok || task.Finished() {
		q.mu.Unlock()

		return nil
	}

	if stage != "" {
		task.CurrentStage = stage
	}

	if progress != nil {
		task.Progress = min(max(*progress, 0), 100)
	}

	q.tasks[taskID] = task
	q.mu.Unlock()

	persistErr := q.persist()
	if persistErr != nil {
		return persistErr
	}

	q.publish(task)

	return nil
}

// Reorder changes the task's queue priority. Lower runs first.
func (q *Queue) Reorder(taskID string, priority int) error {
	err := q.ensureLoaded()
	if err != nil {
		return err
	}

	q.mu.Lock()

	task, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()

		return fmt.Errorf("task %s not found", taskID)
	}

	task.Priority = priority
	q.tasks[taskID] = task
	q.mu.Unlock()

	persistErr := q.persist()
	if persistErr != nil {
		return persistErr
	}

	q.publish(task)

	return nil
}

// Delete removes a task. Processing tasks cannot be deleted.
func (q *Queue) Delete(taskID string) error {
	err := q.ensureLoaded()
	if err != nil {
		return err
	}

	q.mu.Lock()

	task, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()

		return fmt.Errorf("task %s not found", taskID)
	}

	if task.Status == StatusProcessing {
		q.mu.Unlock()

		return fmt.Errorf("task %s is processing and cannot be deleted", taskID)
	}

	delete(q.tasks, taskID)
	q.mu.Unlock()

	persistErr := q.persist()
	if persistErr != nil {
		return persistErr
	}

	q.publish(task)

	return nil
}

// Retry re-queues a Failed task while under its retry cap: the retry
// count is incremented and error, timestamps, and progress are cleared.
func (q *Queue) Retry(taskID string) error {
	err := q.ensureLoaded()
	if err != nil {
		return err
	}

	q.mu.Lock()

	task, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()

		return fmt.Errorf("task %s not found", taskID)
	}

	if task.Status != StatusFailed {
		q.mu.Unlock()

		return fmt.Errorf("task %s is %s, only Failed tasks can be retried", taskID, task.Status)
	}

	if task.RetryCount >= task.MaxRetries {
		q.mu.Unlock()

		return fmt.Errorf("task %s exhausted its %d retries", taskID, task.MaxRetries)
	}

	task.RetryCount++
	task.Status = StatusPending
	task.ErrorMessage = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	task.CurrentStage = ""
	task.Progress = 0

	q.tasks[taskID] = task
	q.mu.Unlock()

	persistErr := q.persist()
	if persistErr != nil {
		return persistErr
	}

	q.publish(task)

	return nil
}

// StopAll fails every Pending and Processing task with the stop message
// and returns how many were stopped.
func (q *Queue) StopAll() (int, error) {
	err := q.ensureLoaded()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()

	q.mu.Lock()

	var stopped []Task

	for id, task := range q.tasks {
		if task.Status != StatusPending && task.Status != StatusProcessing {
			continue
		}

		task.Status = StatusFailed
		task.ErrorMessage = StopMessage
		task.CompletedAt = &now

		delete(q.tasks, id)
		stopped = append(stopped, task)
	}

	q.mu.Unlock()

	persistErr := q.persist()
	if persistErr != nil {
		return 0, persistErr
	}

	for _, task := range stopped {
		q.publish(task)
	}

	return len(stopped), nil
}

// HasProcessing reports whether any task is currently Processing.
func (q *Queue) HasProcessing() (bool, error) {
	err := q.ensureLoaded()
	if err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.Status == StatusProcessing {
			return true, nil
		}
	}

	return false, nil
}

// GetByDocumentIDs returns the live tasks whose documentId is in ids.
func (q *Queue) GetByDocumentIDs(documentIDs []int64) ([]Task, error) {
	err := q.ensureLoaded()
	if err != nil {
		return nil, err
	}

	wanted := make(map[int64]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var tasks []Task

	for _, t := range q.tasks {
		if _, ok := wanted[t.DocumentID]; ok {
			tasks = append(tasks, t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// ResetProcessing returns every Processing task to Pending. Called on
// startup so tasks interrupted by a crash are retried.
func (q *Queue) ResetProcessing() (int, error) {
	err := q.ensureLoaded()
	if err != nil {
		return 0, err
	}

	q.mu.Lock()

	var reset []Task

	for id, task := range q.tasks {
		if task.Status != StatusProcessing {
			continue
		}

		task.Status = StatusPending
		task.StartedAt = nil
		task.CurrentStage = ""
		task.Progress = 0

		q.tasks[id] = task
		reset = append(reset, task)
	}

	q.mu.Unlock()

	if len(reset) == 0 {
		return 0, nil
	}

	persistErr := q.persist()
	if persistErr != nil {
		return 0, persistErr
	}

	for _, task := range reset {
		q.publish(task)
	}

	return len(reset), nil
}

// ClearAll wipes every task from memory and storage.
func (q *Queue) ClearAll() error {
	err := q.ensureLoaded()
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.tasks = make(map[string]Task)
	q.mu.Unlock()

	return q.store.Clear()
}
