package prometheus

import (
	"strconv"
	"time"
)

// ExplorerMetrics holds every metric the explorer records.
type ExplorerMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Expansion engine
	StepsTotal          CounterVec
	StepDuration        HistogramVec
	CandidatesEvaluated CounterVec
	CandidatesPruned    CounterVec
	CandidatesZoned     CounterVec
	RescoreDuration     HistogramVec
	ActiveSteps         GaugeVec

	// Gateway
	GatewayRequestsTotal CounterVec
	GatewayErrorsTotal   CounterVec
	GatewayLiveDuration  HistogramVec

	// Sinks
	EventsPublished CounterVec

	// Prefetch worker
	PrefetchRunsTotal       CounterVec
	PrefetchDuration        HistogramVec
	PrefetchNeighboursTotal CounterVec
}

var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultStepDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}
	DefaultFetchBuckets        = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// NewExplorerMetrics registers all metrics on collector.
func NewExplorerMetrics(c MetricsCollector) *ExplorerMetrics {
	return &ExplorerMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path"),

		StepsTotal:          c.RegisterCounter("exploration_steps_total", "Exploration steps by kind and outcome", "kind", "outcome"),
		StepDuration:        c.RegisterHistogram("exploration_step_duration_seconds", "Exploration step duration", DefaultStepDurationBuckets, "kind"),
		CandidatesEvaluated: c.RegisterCounter("exploration_candidates_evaluated_total", "Candidates scored", "kind"),
		CandidatesPruned:    c.RegisterCounter("exploration_candidates_pruned_total", "Candidates dropped by the candidate cap", "kind"),
		CandidatesZoned:     c.RegisterCounter("exploration_candidates_zoned_total", "Candidates by resulting zone", "kind", "zone"),
		RescoreDuration:     c.RegisterHistogram("exploration_rescore_duration_seconds", "Rescore duration", DefaultFetchBuckets),
		ActiveSteps:         c.RegisterGauge("exploration_active_steps", "Steps currently running", "kind"),

		GatewayRequestsTotal: c.RegisterCounter("gateway_requests_total", "Gateway lookups by operation and source", "operation", "source"),
		GatewayErrorsTotal:   c.RegisterCounter("gateway_errors_total", "Gateway lookup failures", "operation"),
		GatewayLiveDuration:  c.RegisterHistogram("gateway_live_fetch_duration_seconds", "Live source fetch duration", DefaultFetchBuckets, "operation"),

		EventsPublished: c.RegisterCounter("events_published_total", "Domain events by type and outcome", "type", "outcome"),

		PrefetchRunsTotal:       c.RegisterCounter("prefetch_runs_total", "Frontier warm runs by trigger and outcome", "event_type", "outcome"),
		PrefetchDuration:        c.RegisterHistogram("prefetch_duration_seconds", "Frontier warm duration", DefaultStepDurationBuckets),
		PrefetchNeighboursTotal: c.RegisterCounter("prefetch_neighbours_total", "Neighbour details warmed by outcome", "outcome"),
	}
}

// NewNoopExplorerMetrics returns metrics that discard everything.
func NewNoopExplorerMetrics() *ExplorerMetrics {
	return NewExplorerMetrics(NewNoopCollector())
}

// RecordHTTPRequest records one served request.
func (m *ExplorerMetrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// StepOutcome labels for StepsTotal.
const (
	OutcomeCommitted = "committed"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// RecordStep records a finished step. zones maps zone name to count.
func (m *ExplorerMetrics) RecordStep(kind, outcome string, d time.Duration, evaluated, pruned int, zones map[string]int) {
	m.StepsTotal.WithLabelValues(kind, outcome).Inc()
	m.StepDuration.WithLabelValues(kind).Observe(d.Seconds())
	if outcome != OutcomeCommitted {
		return
	}
	m.CandidatesEvaluated.WithLabelValues(kind).Add(float64(evaluated))
	m.CandidatesPruned.WithLabelValues(kind).Add(float64(pruned))
	for zone, n := range zones {
		m.CandidatesZoned.WithLabelValues(kind, zone).Add(float64(n))
	}
}

// Gateway sources.
const (
	SourceCache = "cache"
	SourceLive  = "live"
)

// RecordGatewayLookup records where a gateway answer came from.
func (m *ExplorerMetrics) RecordGatewayLookup(operation, source string) {
	m.GatewayRequestsTotal.WithLabelValues(operation, source).Inc()
}

// RecordGatewayError records a failed live fetch.
func (m *ExplorerMetrics) RecordGatewayError(operation string) {
	m.GatewayErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordEvent records a publish attempt.
func (m *ExplorerMetrics) RecordEvent(eventType string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, outcome).Inc()
}

// RecordPrefetch records one frontier warm run.
func (m *ExplorerMetrics) RecordPrefetch(eventType, outcome string, d time.Duration, warmed, failed int) {
	m.PrefetchRunsTotal.WithLabelValues(eventType, outcome).Inc()
	m.PrefetchDuration.WithLabelValues().Observe(d.Seconds())
	m.PrefetchNeighboursTotal.WithLabelValues("ok").Add(float64(warmed))
	m.PrefetchNeighboursTotal.WithLabelValues("failed").Add(float64(failed))
}
