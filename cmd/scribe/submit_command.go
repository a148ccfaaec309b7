package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req api.SubmitRequest
	var durationFlag string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <artifact-ref>",
		Short: "Submit a media artifact for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ArtifactRef = args[0]
			if durationFlag != "" {
				parsed, err := time.ParseDuration(durationFlag)
				if err != nil {
					return fmt.Errorf("parse duration: %w", err)
				}
				req.DurationSeconds = parsed.Seconds()
			}

			client := ctx.client()
			job, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s accepted (%s, %s, priority %d)\n",
				job.ID, job.Kind, humanize.Bytes(uint64(req.SizeBytes)), job.Priority)

			if !watch {
				return nil
			}
			return watchJobs(cmd, client, job.ID)
		},
	}

	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "Owner identifier the job is billed to")
	cmd.Flags().StringVar(&req.Kind, "kind", "transcribe", "Job kind (transcribe, summarize, translate, index)")
	cmd.Flags().Int64Var(&req.SizeBytes, "size", 0, "Artifact size in bytes")
	cmd.Flags().StringVar(&durationFlag, "duration", "", "Artifact duration (for example 90m or 1.5h)")
	cmd.Flags().StringVar(&req.Format, "format", "", "Container format (wav, mp3, ...)")
	cmd.Flags().StringVar(&req.Language, "language", "", "Spoken language hint")
	cmd.Flags().StringSliceVar(&req.FollowUps, "follow-up", nil, "Analysis kinds to run after transcription")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stream progress events until the job finishes")
	cmd.MarkFlagRequired("owner")

	return cmd
}
