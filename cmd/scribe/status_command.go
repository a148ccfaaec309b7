package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderJob(cmd, job)
			return nil
		},
	}
}

func renderJob(cmd *cobra.Command, job *api.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Owner:    %s (%s tier)\n", job.OwnerID, job.Tier)
	fmt.Fprintf(out, "Kind:     %s\n", job.Kind)
	fmt.Fprintf(out, "Phase:    %s\n", job.Phase)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Progress: %.1f%% %s\n", job.Progress.Percent, job.Progress.Message)
	fmt.Fprintf(out, "Attempts: %d/%d", job.Attempts, job.MaxAttempts)
	if job.StalledCount > 0 {
		fmt.Fprintf(out, " (stalled %d times)", job.StalledCount)
	}
	fmt.Fprintln(out)
	if job.ErrorCode != "" || job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", strings.TrimSpace(job.ErrorCode+" "+job.ErrorMessage))
	}
	if job.ResultRef != "" {
		fmt.Fprintf(out, "Result:   %s\n", job.ResultRef)
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-status",
		Short: "Show daemon runtime information",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:      %t (pid %d)\n", status.Running, status.PID)
			fmt.Fprintf(out, "Worker slots: %d\n", status.WorkerSlots)
			fmt.Fprintf(out, "Queue DB:     %s\n", status.QueueDBPath)
			fmt.Fprintf(out, "Lock file:    %s\n", status.LockFilePath)
			q := status.Queue
			fmt.Fprintf(out, "Queue:        %d total (%d queued, %d active, %d backoff, %d completed, %d dead)\n",
				q.Total, q.Queued, q.Active, q.Backoff, q.Completed, q.Dead)
			if status.PendingQuotaCommits > 0 {
				fmt.Fprintf(out, "Pending quota commits: %d\n", status.PendingQuotaCommits)
			}
			return nil
		},
	}
}
