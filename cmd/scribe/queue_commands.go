package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status or owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()

			var (
				jobs []api.Job
				err  error
			)
			if owner != "" {
				jobs, err = client.JobsByOwner(cmd.Context(), owner)
			} else {
				jobs, err = client.Jobs(cmd.Context(), statuses...)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "Queue is empty.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				progress := fmt.Sprintf("%.0f%%", job.Progress.Percent)
				detail := job.Progress.Message
				if job.ErrorMessage != "" {
					detail = job.ErrorMessage
				}
				rows = append(rows, []string{
					job.ID,
					job.OwnerID,
					job.Kind,
					job.Status,
					fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
					progress,
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Owner", "Kind", "Status", "Attempts", "Progress", "Detail"},
				rows, 4, 5))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (queued, active, failed, completed, dead)")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Return a dead job to the queue with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued.\n", job.ID)
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Delete a job that is not being processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s removed.\n", args[0])
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove completed or dead jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized := strings.ToLower(strings.TrimSpace(status))
			if normalized != string(queue.StatusCompleted) && normalized != string(queue.StatusDead) {
				return fmt.Errorf("--status must be %s or %s", queue.StatusCompleted, queue.StatusDead)
			}
			count, err := ctx.client().ClearQueue(cmd.Context(), normalized)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s job(s).\n", count, normalized)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(queue.StatusCompleted), "Which jobs to clear (completed or dead)")
	return cmd
}
