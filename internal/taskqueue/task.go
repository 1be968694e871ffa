// Package taskqueue implements the durable ingestion job queue: a
// file-backed state store, priority-ordered queue operations, and the
// single-slot background processor.
package taskqueue

import "time"

// Status is the lifecycle state of a task.
type Status string

// Task statuses. Transitions run Pending -> Processing -> Completed or
// Failed; Retry takes Failed back to Pending while under the retry cap.
const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// DefaultMaxRetries caps how often a failed task may be retried.
const DefaultMaxRetries = 3

// Task is one unit of ingestion work. Finished tasks (Completed or
// Failed) are removed from both the queue and the state file.
type Task struct {
	TaskID        string     `json:"taskId"`
	DocumentID    int64      `json:"documentId"`
	RAGDocumentID string     `json:"ragDocumentId"`
	Content       string     `json:"content"`
	FilePath      string     `json:"filePath"`
	Status        Status     `json:"status"`
	CurrentStage  string     `json:"currentStage,omitempty"`
	Progress      int        `json:"progress"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	Priority      int        `json:"priority"`
	RetryCount    int        `json:"retryCount"`
	MaxRetries    int        `json:"maxRetries"`
}

// Finished reports whether the task reached a terminal status.
func (t Task) Finished() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
