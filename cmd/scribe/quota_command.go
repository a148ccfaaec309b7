package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "quota <owner>",
		Short: "Show an owner's usage for the current period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := ctx.client().Quota(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Transcription", formatUnits(usage.TranscriptionHoursUsed, "h"), formatLimit(usage.TranscriptionHoursMax, "h")},
				{"Analysis", formatUnits(usage.AnalysisJobsUsed, " jobs"), formatLimit(usage.AnalysisJobsMax, " jobs")},
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Owner %s (%s tier), period %s\n", usage.OwnerID, usage.Tier, usage.Period)
			fmt.Fprintln(out, renderTable([]string{"Quota", "Used", "Limit"}, rows, 1, 2))
			return nil
		},
	}
}

func formatUnits(value float64, suffix string) string {
	return fmt.Sprintf("%.1f%s", value, suffix)
}

func formatLimit(value float64, suffix string) string {
	if value < 0 {
		return "unlimited"
	}
	return formatUnits(value, suffix)
}
