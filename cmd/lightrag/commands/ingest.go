package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lightrag-go/lightrag/internal/taskqueue"
)

// ErrNoInputFiles is returned when ingest is invoked without readable files.
var ErrNoInputFiles = errors.New("no input files")

// IngestCommand holds state for the ingest command.
type IngestCommand struct {
	configPath string
	logLevel   string
	quiet      bool
}

// NewIngestCommand creates the ingest command. It enqueues each input
// file as an ingestion task and runs the queue processor until every
// enqueued task reaches a terminal status.
func NewIngestCommand() *cobra.Command {
	ic := &IngestCommand{}

	cmd := &cobra.Command{
		Use:   "ingest <file> [file...]",
		Short: "Ingest documents into the knowledge graph",
		Long:  "Enqueue one task per input file and process the queue until all of them finish.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  ic.run,
	}

	cmd.Flags().StringVarP(&ic.configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&ic.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVarP(&ic.quiet, "quiet", "q", false, "Suppress per-task progress output")

	return cmd
}

func (ic *IngestCommand) run(cmd *cobra.Command, args []string) error {
	services, err := buildServices(ic.configPath, ic.logLevel)
	if err != nil {
		return err
	}
	defer services.Close()

	pending, err := enqueueFiles(services.Queue, args, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		return ErrNoInputFiles
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ic.processUntilDone(ctx, services, pending, cmd)
}

// enqueueFiles reads each path and enqueues one task per readable file.
// Unreadable files are reported and skipped. Returns the set of task IDs
// still awaiting a terminal status.
func enqueueFiles(queue *taskqueue.Queue, paths []string, out io.Writer) (map[string]struct{}, error) {
	pending := make(map[string]struct{}, len(paths))

	for i, path := range paths {
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			fmt.Fprintf(out, "skipping %s: %v\n", path, readErr)

			continue
		}

		taskID, enqErr := queue.Enqueue(int64(i+1), string(content), path)
		if enqErr != nil {
			return nil, fmt.Errorf("enqueue %s: %w", path, enqErr)
		}

		pending[taskID] = struct{}{}

		fmt.Fprintf(out, "enqueued %s as task %s\n", path, taskID)
	}

	return pending, nil
}

// processUntilDone runs the queue processor and watches queue change
// events until every task in pending finishes or the context is
// cancelled.
func (ic *IngestCommand) processUntilDone(ctx context.Context, services *Services, pending map[string]struct{}, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	changes, unsubscribe := services.Queue.Subscribe()
	defer unsubscribe()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runDone := make(chan error, 1)

	go func() {
		runDone <- services.Processor.Run(runCtx)
	}()

	failed := 0

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			cancelRun()
			<-runDone

			return ctx.Err()
		case task := <-changes:
			if _, ok := pending[task.TaskID]; !ok {
				continue
			}

			if !ic.quiet && task.Status == taskqueue.StatusProcessing && task.CurrentStage != "" {
				fmt.Fprintf(out, "  %s: %s (%d%%)\n", task.TaskID, task.CurrentStage, task.Progress)
			}

			if !task.Finished() {
				continue
			}

			delete(pending, task.TaskID)

			switch task.Status {
			case taskqueue.StatusCompleted:
				fmt.Fprintf(out, "%s %s -> %s\n", color.GreenString("done"), task.TaskID, task.RAGDocumentID)
			case taskqueue.StatusFailed:
				failed++

				fmt.Fprintf(out, "%s %s: %s\n", color.RedString("failed"), task.TaskID, task.ErrorMessage)
			}
		}
	}

	cancelRun()

	err := <-runDone
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}

	return nil
}
