package quota

import (
	"context"
)

// Usage reports an owner's consumption against their tier ceilings for the
// current period. Max values carry the tier.Unlimited sentinel for tiers
// without a ceiling.
type Usage struct {
	OwnerID                string
	Tier                   string
	Period                 string
	TranscriptionHoursUsed float64
	TranscriptionHoursMax  float64
	AnalysisJobsUsed       float64
	AnalysisJobsMax        float64
}

// UsageFor summarizes the owner's current-period consumption.
func (l *Ledger) UsageFor(ctx context.Context, ownerID string) (Usage, error) {
	limits := l.catalog.LimitsFor(ownerID)

	hours, err := l.Used(ctx, ownerID, "transcribe")
	if err != nil {
		return Usage{}, err
	}
	jobs, err := l.Used(ctx, ownerID, "summarize")
	if err != nil {
		return Usage{}, err
	}

	return Usage{
		OwnerID:                ownerID,
		Tier:                   limits.Name,
		Period:                 l.Period(),
		TranscriptionHoursUsed: hours,
		TranscriptionHoursMax:  limits.TranscriptionHours,
		AnalysisJobsUsed:       jobs,
		AnalysisJobsMax:        limits.AnalysisJobs,
	}, nil
}
