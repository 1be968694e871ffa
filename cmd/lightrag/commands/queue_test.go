package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightrag-go/lightrag/internal/taskqueue"
)

func TestNewQueueCommand_RegistersSubcommands(t *testing.T) {
	t.Parallel()

	cmd := NewQueueCommand()

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.ElementsMatch(t,
		[]string{"list", "status", "retry", "delete", "stop", "clear", "reorder"}, names)
}

func TestNewIngestCommand_Flags(t *testing.T) {
	t.Parallel()

	cmd := NewIngestCommand()

	assert.NotNil(t, cmd.Flags().Lookup("config"))
	assert.NotNil(t, cmd.Flags().Lookup("log-level"))
	assert.NotNil(t, cmd.Flags().Lookup("quiet"))
}

func TestEnqueueFiles_SkipsUnreadable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("some document text"), 0o644))

	queue := taskqueue.NewQueue(taskqueue.NewStateStore(t.TempDir(), nil), 3, nil)

	var out bytes.Buffer

	pending, err := enqueueFiles(queue, []string{good, filepath.Join(dir, "missing.txt")}, &out)
	require.NoError(t, err)

	assert.Len(t, pending, 1)
	assert.Contains(t, out.String(), "enqueued "+good)
	assert.Contains(t, out.String(), "skipping")

	tasks, err := queue.List()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, good, tasks[0].FilePath)
	assert.Equal(t, taskqueue.StatusPending, tasks[0].Status)
}

func TestRenderTaskTable_IncludesTasks(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	renderTaskTable(cmd, []taskqueue.Task{
		{
			TaskID:       "task-abc",
			FilePath:     "notes.txt",
			Status:       taskqueue.StatusProcessing,
			CurrentStage: "Processing chunks",
			Progress:     40,
			MaxRetries:   3,
			CreatedAt:    time.Now().Add(-time.Minute),
		},
	})

	assert.Contains(t, out.String(), "task-abc")
	assert.Contains(t, out.String(), "notes.txt")
	assert.Contains(t, out.String(), "40%")
	assert.Contains(t, out.String(), "minute ago")
}

func TestTaskAge(t *testing.T) {
	t.Parallel()

	created := time.Now().Add(-2 * time.Hour)
	started := time.Now().Add(-10 * time.Minute)

	assert.Contains(t, taskAge(taskqueue.Task{CreatedAt: created}), "hour")
	assert.Contains(t, taskAge(taskqueue.Task{CreatedAt: created, StartedAt: &started}), "minute")
}
