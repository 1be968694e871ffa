package taskqueue

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lightrag-go/lightrag/internal/persist"
)

// stateVersion is the schema version written into the state file.
const stateVersion = "1.0"

// stateFileName is the task state file inside the working directory.
const stateFileName = "tasks.json"

// stateFile is the on-disk task state document.
type stateFile struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
	Tasks       []Task    `json:"tasks"`
}

// StateStore persists the live task list to {workingDir}/tasks.json with
// an atomic write protocol. Reads are tolerant: a missing or empty file
// yields an empty list, and a malformed file is backed up and replaced.
type StateStore struct {
	path   string
	codec  persist.Codec
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStateStore creates a state store rooted at workingDir.
func NewStateStore(workingDir string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &StateStore{
		path:   filepath.Join(workingDir, stateFileName),
		codec:  persist.NewJSONCodec(),
		logger: logger,
	}
}

// Load reads the persisted task list. A missing or empty file yields an
// empty list; a corrupt file is moved aside to tasks.json.backup.{ts} and
// treated as empty.
func (s *StateStore) Load() ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if persist.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("stat task state: %w", err)
	}

	if info.Size() == 0 {
		return nil, nil
	}

	var state stateFile

	loadErr := persist.Load(s.path, s.codec, &state)
	if loadErr != nil {
		backup := fmt.Sprintf("%s.backup.%d", s.path, time.Now().Unix())

		s.logger.Warn("task state file is corrupt, backing up and starting empty",
			"path", s.path, "backup", backup, "err", loadErr)

		renameErr := os.Rename(s.path, backup)
		if renameErr != nil {
			return nil, fmt.Errorf("back up corrupt task state: %w", renameErr)
		}

		return nil, nil
	}

	return state.Tasks, nil
}

// Save atomically replaces the persisted task list.
func (s *StateStore) Save(tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := stateFile{
		Version:     stateVersion,
		LastUpdated: time.Now().UTC(),
		Tasks:       tasks,
	}

	if state.Tasks == nil {
		state.Tasks = []Task{}
	}

	err := persist.SaveAtomic(s.path, s.codec, state)
	if err != nil {
		return fmt.Errorf("save task state: %w", err)
	}

	return nil
}

// Clear removes the state file entirely.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !persist.IsNotExist(err) {
		return fmt.Errorf("clear task state: %w", err)
	}

	return nil
}
