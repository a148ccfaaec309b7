package provider

import (
	"context"
	"fmt"

	"scribe/internal/config"
	"scribe/internal/tier"
)

// Request describes one provider call. For whole-file execution Segment is
// zero and SegmentCount is one; chunked execution numbers segments from zero
// in payload order.
type Request struct {
	JobID           string
	Kind            string
	ArtifactRef     string
	SizeBytes       int64
	DurationSeconds float64
	Format          string
	Language        string
	Segment         int
	SegmentCount    int
}

// Result is the output of one provider call.
type Result struct {
	OutputRef string
	Text      string
}

// CallLimits bounds what a provider accepts in a single call. Zero means
// unbounded on that axis.
type CallLimits struct {
	MaxBytes   int64
	MaxSeconds float64
}

// Accepts reports whether a payload of the given size and duration fits in
// one call.
func (l CallLimits) Accepts(sizeBytes int64, durationSeconds float64) bool {
	if l.MaxBytes > 0 && sizeBytes > l.MaxBytes {
		return false
	}
	if l.MaxSeconds > 0 && durationSeconds > l.MaxSeconds {
		return false
	}
	return true
}

// Provider is one external processing backend. Implementations classify
// failures with the package sentinel errors so workers can decide between
// retry, fallback, and dead-letter.
type Provider interface {
	Name() string
	Limits() CallLimits
	Process(ctx context.Context, req Request) (*Result, error)
}

// Registry holds configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds HTTP providers from configuration.
func NewRegistry(cfg *config.Config) *Registry {
	providers := make(map[string]Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		providers[name] = NewHTTPProvider(name, pc)
	}
	return &Registry{providers: providers}
}

// NewRegistryFrom builds a registry from explicit providers, used by tests to
// inject fakes.
func NewRegistryFrom(providers ...Provider) *Registry {
	reg := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		reg.providers[p.Name()] = p
	}
	return reg
}

// Lookup returns a provider by name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Route resolves a tier's provider route for a job kind into concrete
// providers, primary first.
func (r *Registry) Route(limits tier.Limits, kind string) ([]Provider, error) {
	names := limits.RouteFor(kind)
	if len(names) == 0 {
		return nil, fmt.Errorf("tier %s has no route for kind %s", limits.Name, kind)
	}
	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		p, ok := r.providers[name]
		if !ok {
			return nil, fmt.Errorf("route references unknown provider %q", name)
		}
		providers = append(providers, p)
	}
	return providers, nil
}
