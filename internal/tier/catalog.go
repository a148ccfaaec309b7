package tier

import (
	"fmt"
	"sort"
	"strings"

	"scribe/internal/config"
)

// Unlimited is the sentinel limit value for tiers without a quota ceiling.
const Unlimited = -1

// Limits describes what a single tier permits.
type Limits struct {
	Name               string
	Priority           int
	TranscriptionHours float64
	AnalysisJobs       float64
	MaxPayloadBytes    int64
	MaxPayloadSeconds  float64
	Routes             map[string][]string
}

// UnitLimit returns the quota ceiling for a job kind. Transcription quota is
// measured in hours of audio; every other kind counts jobs.
func (l Limits) UnitLimit(kind string) float64 {
	if kind == "transcribe" {
		return l.TranscriptionHours
	}
	return l.AnalysisJobs
}

// RouteFor returns the ordered provider names for a job kind, primary first.
func (l Limits) RouteFor(kind string) []string {
	route := l.Routes[kind]
	cp := make([]string, len(route))
	copy(cp, route)
	return cp
}

// Catalog resolves owners to tier limits. Assignments come from configuration;
// owners without an explicit assignment fall back to the default tier.
type Catalog struct {
	tiers       map[string]Limits
	assignments map[string]string
	defaultTier string
}

// NewCatalog builds a catalog from validated configuration.
func NewCatalog(cfg *config.Config) (*Catalog, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tier catalog requires config")
	}
	tiers := make(map[string]Limits, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		routes := make(map[string][]string, len(t.Routes))
		for kind, route := range t.Routes {
			cp := make([]string, len(route))
			copy(cp, route)
			routes[kind] = cp
		}
		tiers[name] = Limits{
			Name:               name,
			Priority:           t.Priority,
			TranscriptionHours: t.TranscriptionHours,
			AnalysisJobs:       t.AnalysisJobs,
			MaxPayloadBytes:    t.MaxPayloadMiB << 20,
			MaxPayloadSeconds:  t.MaxPayloadMinutes * 60,
			Routes:             routes,
		}
	}
	defaultTier := strings.TrimSpace(cfg.Owners.DefaultTier)
	if _, ok := tiers[defaultTier]; !ok {
		return nil, fmt.Errorf("default tier %q not configured", defaultTier)
	}
	assignments := make(map[string]string, len(cfg.Owners.Tiers))
	for owner, name := range cfg.Owners.Tiers {
		if _, ok := tiers[name]; !ok {
			return nil, fmt.Errorf("owner %q assigned unknown tier %q", owner, name)
		}
		assignments[owner] = name
	}
	return &Catalog{tiers: tiers, assignments: assignments, defaultTier: defaultTier}, nil
}

// LimitsFor returns the tier limits for an owner.
func (c *Catalog) LimitsFor(ownerID string) Limits {
	name, ok := c.assignments[ownerID]
	if !ok {
		name = c.defaultTier
	}
	return c.tiers[name]
}

// Lookup returns the limits for a tier by name.
func (c *Catalog) Lookup(name string) (Limits, bool) {
	limits, ok := c.tiers[name]
	return limits, ok
}

// Names returns the configured tier names sorted by priority, highest first.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tiers))
	for name := range c.tiers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := c.tiers[names[i]], c.tiers[names[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return names[i] < names[j]
	})
	return names
}
