package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"scribe/internal/provider"
	"scribe/internal/queue"
)

// strategy executes one attempt against a single provider. progress reports
// fractions in [0,1] of this attempt's work.
type strategy interface {
	run(ctx context.Context, p provider.Provider, job *queue.Job, progress func(float64)) (*provider.Result, error)
}

// selectStrategy picks whole-file execution when the provider accepts the
// payload in one call, and chunked execution otherwise.
func selectStrategy(p provider.Provider, job *queue.Job, parallelism int) strategy {
	limits := p.Limits()
	if limits.Accepts(job.Payload.SizeBytes, job.Payload.DurationSeconds) {
		return wholeFileStrategy{}
	}
	return chunkedStrategy{parallelism: parallelism}
}

type wholeFileStrategy struct{}

func (wholeFileStrategy) run(ctx context.Context, p provider.Provider, job *queue.Job, progress func(float64)) (*provider.Result, error) {
	result, err := p.Process(ctx, provider.Request{
		JobID:           job.ID,
		Kind:            string(job.Kind),
		ArtifactRef:     job.Payload.ArtifactRef,
		SizeBytes:       job.Payload.SizeBytes,
		DurationSeconds: job.Payload.DurationSeconds,
		Format:          job.Payload.Format,
		Language:        job.Payload.Language,
		Segment:         0,
		SegmentCount:    1,
	})
	if err != nil {
		return nil, err
	}
	progress(1)
	return result, nil
}

// chunkedStrategy splits the payload into provider-limit-sized segments,
// processes them with bounded parallelism, and recombines outputs in the
// original segment order. Segment boundaries are byte/time slices with no
// content awareness; joins may introduce minor discontinuities, which is the
// accepted trade-off of fallback chunking.
type chunkedStrategy struct {
	parallelism int
}

type segment struct {
	index           int
	sizeBytes       int64
	durationSeconds float64
}

func (s chunkedStrategy) run(ctx context.Context, p provider.Provider, job *queue.Job, progress func(float64)) (*provider.Result, error) {
	segments := splitSegments(job.Payload.SizeBytes, job.Payload.DurationSeconds, p.Limits())
	if len(segments) == 0 {
		return nil, provider.Wrap(provider.ErrFatal, p.Name(), "chunk", "payload does not fit provider limits", nil)
	}

	parallelism := s.parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(segments) {
		parallelism = len(segments)
	}

	type segmentResult struct {
		index  int
		result *provider.Result
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan segment)
	results := make(chan segmentResult, len(segments))
	errs := make(chan error, len(segments))
	var done int64
	var doneMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range work {
				result, err := p.Process(runCtx, provider.Request{
					JobID:           job.ID,
					Kind:            string(job.Kind),
					ArtifactRef:     job.Payload.ArtifactRef,
					SizeBytes:       seg.sizeBytes,
					DurationSeconds: seg.durationSeconds,
					Format:          job.Payload.Format,
					Language:        job.Payload.Language,
					Segment:         seg.index,
					SegmentCount:    len(segments),
				})
				if err != nil {
					errs <- fmt.Errorf("segment %d: %w", seg.index, err)
					cancel()
					return
				}
				results <- segmentResult{index: seg.index, result: result}
				doneMu.Lock()
				done++
				completed := done
				doneMu.Unlock()
				progress(float64(completed) / float64(len(segments)))
			}
		}()
	}

feed:
	for _, seg := range segments {
		select {
		case work <- seg:
		case <-runCtx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	close(results)
	close(errs)

	var firstErr error
	for err := range errs {
		// Cancellation fallout from another segment's failure must not mask
		// the failure that caused it.
		if firstErr == nil || (provider.IsFatal(err) && !provider.IsFatal(firstErr)) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	ordered := make([]segmentResult, 0, len(segments))
	for sr := range results {
		ordered = append(ordered, sr)
	}
	if len(ordered) != len(segments) {
		return nil, provider.Wrap(provider.ErrRetryable, p.Name(), "chunk",
			fmt.Sprintf("%d of %d segments completed", len(ordered), len(segments)), nil)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	var texts []string
	var refs []string
	for _, sr := range ordered {
		if sr.result.Text != "" {
			texts = append(texts, sr.result.Text)
		}
		if sr.result.OutputRef != "" {
			refs = append(refs, sr.result.OutputRef)
		}
	}
	combined := &provider.Result{Text: strings.Join(texts, "\n")}
	if len(refs) > 0 {
		combined.OutputRef = refs[len(refs)-1]
	}
	return combined, nil
}

// splitSegments slices a payload into the fewest equal segments that fit the
// provider's per-call limits on both axes.
func splitSegments(sizeBytes int64, durationSeconds float64, limits provider.CallLimits) []segment {
	count := 1
	if limits.MaxBytes > 0 && sizeBytes > 0 {
		n := int((sizeBytes + limits.MaxBytes - 1) / limits.MaxBytes)
		if n > count {
			count = n
		}
	}
	if limits.MaxSeconds > 0 && durationSeconds > 0 {
		n := int(durationSeconds/limits.MaxSeconds) + 1
		if durationSeconds == limits.MaxSeconds*float64(n-1) {
			n--
		}
		if n > count {
			count = n
		}
	}

	segments := make([]segment, count)
	baseBytes := sizeBytes / int64(count)
	baseSeconds := durationSeconds / float64(count)
	for i := range segments {
		segments[i] = segment{
			index:           i,
			sizeBytes:       baseBytes,
			durationSeconds: baseSeconds,
		}
	}
	// The last segment carries the division remainder so the descriptors
	// sum back to the payload.
	segments[count-1].sizeBytes = sizeBytes - baseBytes*int64(count-1)
	segments[count-1].durationSeconds = durationSeconds - baseSeconds*float64(count-1)
	return segments
}
