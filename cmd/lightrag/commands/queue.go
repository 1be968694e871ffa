package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lightrag-go/lightrag/internal/taskqueue"
)

// QueueCommand holds shared state for the queue subcommands.
type QueueCommand struct {
	configPath string
	logLevel   string
}

// NewQueueCommand creates the queue management command tree.
func NewQueueCommand() *cobra.Command {
	qc := &QueueCommand{}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the ingestion task queue",
	}

	cmd.PersistentFlags().StringVarP(&qc.configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&qc.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(qc.newListCommand())
	cmd.AddCommand(qc.newStatusCommand())
	cmd.AddCommand(qc.newRetryCommand())
	cmd.AddCommand(qc.newDeleteCommand())
	cmd.AddCommand(qc.newStopCommand())
	cmd.AddCommand(qc.newClearCommand())
	cmd.AddCommand(qc.newReorderCommand())

	return cmd
}

// withQueue builds the services, runs fn against the queue, and closes
// the services afterwards.
func (qc *QueueCommand) withQueue(fn func(*taskqueue.Queue, *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		services, err := buildServices(qc.configPath, qc.logLevel)
		if err != nil {
			return err
		}
		defer services.Close()

		return fn(services.Queue, cmd)
	}
}

func (qc *QueueCommand) newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued and in-flight tasks",
		Args:  cobra.NoArgs,
		RunE: qc.withQueue(func(queue *taskqueue.Queue, cmd *cobra.Command) error {
			tasks, err := queue.List()
			if err != nil {
				return err
			}

			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")

				return nil
			}

			renderTaskTable(cmd, tasks)

			return nil
		}),
	}
}

// renderTaskTable prints the task list as a table sorted the way the
// queue would drain it.
func renderTaskTable(cmd *cobra.Command, tasks []taskqueue.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"TASK", "FILE", "STATUS", "STAGE", "PROGRESS", "PRIO", "RETRIES", "CREATED"})

	for _, task := range tasks {
		progress := "-"
		if task.Status == taskqueue.StatusProcessing {
			progress = strconv.Itoa(task.Progress) + "%"
		}

		tw.AppendRow(table.Row{
			task.TaskID,
			task.FilePath,
			colorStatus(task.Status),
			task.CurrentStage,
			progress,
			task.Priority,
			fmt.Sprintf("%d/%d", task.RetryCount, task.MaxRetries),
			humanize.Time(task.CreatedAt),
		})
	}

	tw.Render()
}

func colorStatus(status taskqueue.Status) string {
	switch status {
	case taskqueue.StatusPending:
		return color.YellowString(string(status))
	case taskqueue.StatusProcessing:
		return color.CyanString(string(status))
	case taskqueue.StatusCompleted:
		return color.GreenString(string(status))
	case taskqueue.StatusFailed:
		return color.RedString(string(status))
	default:
		return string(status)
	}
}

func (qc *QueueCommand) newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Requeue a failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return qc.withQueue(func(queue *taskqueue.Queue, cmd *cobra.Command) error {
				err := queue.Retry(args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "task %s requeued\n", args[0])

				return nil
			})(cmd, args)
		},
	}
}

func (qc *QueueCommand) newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task that is not processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return qc.withQueue(func(queue *taskqueue.Queue, cmd *cobra.Command) error {
				err := queue.Delete(args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "task %s deleted\n", args[0])

				return nil
			})(cmd, args)
		},
	}
}

func (qc *QueueCommand) newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop all unfinished tasks",
		Args:  cobra.NoArgs,
		RunE: qc.withQueue(func(queue *taskqueue.Queue, cmd *cobra.Command) error {
			stopped, err := queue.StopAll()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "stopped %d task(s)\n", stopped)

			return nil
		}),
	}
}

func (qc *QueueCommand) newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all tasks and the state file",
		Args:  cobra.NoArgs,
		RunE: qc.withQueue(func(queue *taskqueue.Queue, cmd *cobra.Command) error {
			err := queue.ClearAll()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "queue cleared")

			return nil
		}),
	}
}

func (qc *QueueCommand) newReorderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <task-id> <priority>",
		Short: "Change a task's priority (lower runs first)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("parse priority %q: %w", args[1], err)
			}

			return qc.withQueue(func(queue *taskqueue.Queue, cmd *cobra.Command) error {
				err := queue.Reorder(args[0], priority)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "task %s priority set to %d\n", args[0], priority)

				return nil
			})(cmd, args)
		},
	}
}

func (qc *QueueCommand) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show details for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return qc.withQueue(func(queue *taskqueue.Queue, cmd *cobra.Command) error {
				task, ok, err := queue.Get(args[0])
				if err != nil {
					return err
				}

				if !ok {
					return fmt.Errorf("task %s not found", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "task:     %s\n", task.TaskID)
				fmt.Fprintf(out, "document: %s\n", task.RAGDocumentID)
				fmt.Fprintf(out, "file:     %s\n", task.FilePath)
				fmt.Fprintf(out, "status:   %s\n", colorStatus(task.Status))

				if task.CurrentStage != "" {
					fmt.Fprintf(out, "stage:    %s (%d%%)\n", task.CurrentStage, task.Progress)
				}

				if task.ErrorMessage != "" {
					fmt.Fprintf(out, "error:    %s\n", task.ErrorMessage)
				}

				fmt.Fprintf(out, "age:      %s\n", taskAge(task))
				fmt.Fprintf(out, "retries:  %d/%d\n", task.RetryCount, task.MaxRetries)

				return nil
			})(cmd, args)
		},
	}
}

// taskAge reports time since the task started, or since it was created
// when it has not started yet.
func taskAge(task taskqueue.Task) string {
	if task.StartedAt == nil {
		return humanize.Time(task.CreatedAt)
	}

	return humanize.RelTime(*task.StartedAt, time.Now(), "ago", "from now")
}
