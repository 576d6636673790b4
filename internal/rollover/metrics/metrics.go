package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsAppended        *prometheus.CounterVec
	DuplicateAppends      prometheus.Counter
	RejectedAppends       prometheus.Counter
	ReconciliationPasses  *prometheus.CounterVec
	ReconciliationResults *prometheus.CounterVec
	Submissions           *prometheus.CounterVec
	SubmissionDuration    *prometheus.HistogramVec
	CooldownRejections    prometheus.Counter
	LockContention        prometheus.Counter
	AlertsRaised          *prometheus.CounterVec
	FeedPublishFailures   *prometheus.CounterVec
	FeedPublished         *prometheus.CounterVec
	CacheLookups          *prometheus.CounterVec
}

// New registers the rollover metrics with reg. Pass prometheus.DefaultRegisterer
// in production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_rollover_events_appended_total",
			Help: "Events appended to the rollover event log",
		}, []string{"event_type"}),
		DuplicateAppends: f.NewCounter(prometheus.CounterOpts{
			Name: "trustrails_rollover_duplicate_appends_total",
			Help: "Appends ignored because the event id already existed",
		}),
		RejectedAppends: f.NewCounter(prometheus.CounterOpts{
			Name: "trustrails_rollover_rejected_appends_total",
			Help: "Appends rejected by validation",
		}),
		ReconciliationPasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_reconciliation_scenarios_total",
			Help: "Reconciliation passes by classified scenario",
		}, []string{"scenario"}),
		ReconciliationResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_reconciliation_outcomes_total",
			Help: "Action requests by outcome status or error class",
		}, []string{"result"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_chain_submissions_total",
			Help: "On-chain submission attempts by action and result",
		}, []string{"action", "result"}),
		SubmissionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trustrails_chain_submission_duration_seconds",
			Help:    "Latency of on-chain submissions",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"action"}),
		CooldownRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "trustrails_reconciliation_cooldown_rejections_total",
			Help: "Recovery passes refused because the transfer is cooling down",
		}),
		LockContention: f.NewCounter(prometheus.CounterOpts{
			Name: "trustrails_reconciliation_lock_contention_total",
			Help: "Action requests that waited on or failed to take the per-transfer lock",
		}),
		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_reconciliation_alerts_total",
			Help: "Alerts raised by reconciliation escalations",
		}, []string{"class"}),
		FeedPublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_feed_publish_failures_total",
			Help: "Change-feed publish failures by sink",
		}, []string{"sink"}),
		FeedPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_feed_published_total",
			Help: "Change-feed messages published by sink",
		}, []string{"sink"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustrails_state_cache_lookups_total",
			Help: "Canonical state cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncEventsAppended(eventType string) {
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncDuplicateAppends() {
	m.DuplicateAppends.Inc()
}

func (m *Metrics) IncRejectedAppends() {
	m.RejectedAppends.Inc()
}

func (m *Metrics) IncScenario(scenario string) {
	m.ReconciliationPasses.WithLabelValues(scenario).Inc()
}

func (m *Metrics) IncResult(result string) {
	m.ReconciliationResults.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSubmission(action, result string, seconds float64) {
	m.Submissions.WithLabelValues(action, result).Inc()
	m.SubmissionDuration.WithLabelValues(action).Observe(seconds)
}

func (m *Metrics) IncCooldownRejections() {
	m.CooldownRejections.Inc()
}

func (m *Metrics) IncLockContention() {
	m.LockContention.Inc()
}

func (m *Metrics) IncAlerts(class string) {
	m.AlertsRaised.WithLabelValues(class).Inc()
}

func (m *Metrics) IncFeedPublished(sink string) {
	m.FeedPublished.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncFeedPublishFailures(sink string) {
	m.FeedPublishFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}
