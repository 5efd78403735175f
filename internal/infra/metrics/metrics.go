package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/transport"
)

// Metrics provides observability for the filing lifecycle.
// Tracks pushes, status transitions, transport/parse failures and batch run durations.
type Metrics struct {
	Pushes            prometheus.Counter
	Transitions       *prometheus.CounterVec
	TransportErrors   *prometheus.CounterVec
	ParseErrors       *prometheus.CounterVec
	PreflightFailures prometheus.Counter
	RunDuration       *prometheus.HistogramVec
}

// New creates a Metrics instance registered with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Pushes: f.NewCounter(prometheus.CounterOpts{
			Name: "rre_filing_pushes_total",
			Help: "Total number of submission documents pushed to the receiving system",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rre_filing_transitions_total",
			Help: "Filing status transitions by target status",
		}, []string{"to"}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rre_filing_transport_errors_total",
			Help: "Transport failures by operation and error kind",
		}, []string{"op", "kind"}),
		ParseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rre_filing_response_parse_errors_total",
			Help: "Malformed response artifacts by artifact type",
		}, []string{"artifact"}),
		PreflightFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "rre_filing_preflight_failures_total",
			Help: "Submissions routed to needs_review because the document failed preflight",
		}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rre_filing_batch_run_duration_seconds",
			Help:    "Duration of scheduled submit/poll batch runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job"}),
	}
}

// IncrementPush records a completed push.
func (m *Metrics) IncrementPush() {
	m.Pushes.Inc()
}

// ObserveTransition records a status change into to.
func (m *Metrics) ObserveTransition(to filing.Status) {
	m.Transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) ObserveTransportError(op string, err error) {
	m.TransportErrors.WithLabelValues(op, transport.Kind(err)).Inc()
}

func (m *Metrics) ObserveParseError(artifact string) {
	m.ParseErrors.WithLabelValues(artifact).Inc()
}

func (m *Metrics) IncrementPreflightFailure() {
	m.PreflightFailures.Inc()
}

// ObserveRun records the duration of a batch run.
// Call with time.Now() at the start of the run.
func (m *Metrics) ObserveRun(job string, start time.Time) {
	m.RunDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
