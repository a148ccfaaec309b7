package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures queue and worker activity. Components take the interface
// so tests and the CLI can pass Noop.
type Metrics interface {
	IncSubmitted(kind string)
	IncRejected(reason string)
	IncClaimed(kind string)
	IncCompleted(kind string)
	IncRetried(kind string)
	IncDeadLettered(kind, code string)
	IncStalled(kind string)
	ObserveJobDuration(kind string, durationSeconds float64)
	SetQueueDepth(status string, depth float64)
	IncEventsPublished()
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncSubmitted(string)                {}
func (Noop) IncRejected(string)                 {}
func (Noop) IncClaimed(string)                  {}
func (Noop) IncCompleted(string)                {}
func (Noop) IncRetried(string)                  {}
func (Noop) IncDeadLettered(string, string)     {}
func (Noop) IncStalled(string)                  {}
func (Noop) ObserveJobDuration(string, float64) {}
func (Noop) SetQueueDepth(string, float64)      {}
func (Noop) IncEventsPublished()                {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	submitted    *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	claimed      *prometheus.CounterVec
	completed    *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	stalled      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	queueDepth   *prometheus.GaugeVec
	events       prometheus.Counter
	once         sync.Once
}

// NewProm constructs and registers the Prometheus-backed metrics.
func NewProm(namespace string) *Prom {
	p := &Prom{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Accepted submissions by kind",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Rejected submissions by reason",
		}, []string{"reason"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_claimed_total",
			Help:      "Jobs claimed by workers by kind",
		}, []string{"kind"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs completed by kind",
		}, []string{"kind"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Retryable failures by kind",
		}, []string{"kind"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_lettered_total",
			Help:      "Dead-lettered jobs by kind and error code",
		}, []string{"kind", "code"}),
		stalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_stalled_total",
			Help:      "Expired leases reclaimed by kind",
		}, []string{"kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock job execution time by kind",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"kind"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs per status",
		}, []string{"status"}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_published_total",
			Help:      "Progress events published to watchers",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.submitted, p.rejected, p.claimed, p.completed,
			p.retried, p.deadLettered, p.stalled,
			p.jobDuration, p.queueDepth, p.events,
		)
	})
}

func (p *Prom) IncSubmitted(kind string)  { p.submitted.WithLabelValues(kind).Inc() }
func (p *Prom) IncRejected(reason string) { p.rejected.WithLabelValues(reason).Inc() }
func (p *Prom) IncClaimed(kind string)    { p.claimed.WithLabelValues(kind).Inc() }
func (p *Prom) IncCompleted(kind string)  { p.completed.WithLabelValues(kind).Inc() }
func (p *Prom) IncRetried(kind string)    { p.retried.WithLabelValues(kind).Inc() }
func (p *Prom) IncStalled(kind string)    { p.stalled.WithLabelValues(kind).Inc() }
func (p *Prom) IncEventsPublished()       { p.events.Inc() }

func (p *Prom) IncDeadLettered(kind, code string) {
	p.deadLettered.WithLabelValues(kind, code).Inc()
}

func (p *Prom) ObserveJobDuration(kind string, durationSeconds float64) {
	p.jobDuration.WithLabelValues(kind).Observe(durationSeconds)
}

func (p *Prom) SetQueueDepth(status string, depth float64) {
	p.queueDepth.WithLabelValues(status).Set(depth)
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
