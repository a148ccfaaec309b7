package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/apiclient"
	"scribe/internal/pubsub"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id> [job-id...]",
		Short: "Stream live progress events for jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchJobs(cmd, ctx.client(), args...)
		},
	}
}

// watchJobs streams events until every watched job reaches a terminal phase.
func watchJobs(cmd *cobra.Command, client *apiclient.Client, jobIDs ...string) error {
	watcher, err := client.Watch(cmd.Context(), jobIDs...)
	if err != nil {
		return err
	}
	defer watcher.Close()

	events := make(chan pubsub.Event)
	errc := make(chan error, 1)
	go func() {
		for {
			event, err := watcher.Next(time.Time{})
			if err != nil {
				errc <- err
				return
			}
			events <- event
		}
	}()

	remaining := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		remaining[id] = struct{}{}
	}

	out := cmd.OutOrStdout()
	for len(remaining) > 0 {
		select {
		case event := <-events:
			line := fmt.Sprintf("%s  %-12s %5.1f%%  %s",
				event.Timestamp.Local().Format("15:04:05"), event.Phase, event.ProgressPercent, event.Message)
			if event.ErrorCode != "" {
				line += " [" + event.ErrorCode + "]"
			}
			fmt.Fprintln(out, line)
			if event.Phase == "completed" || event.Phase == "failed" {
				delete(remaining, event.JobID)
			}
		case err := <-errc:
			return fmt.Errorf("event channel closed: %w", err)
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	}
	return nil
}
