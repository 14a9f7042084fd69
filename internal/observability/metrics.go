// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	TransactionsTotal   *prometheus.CounterVec
	TokensMoved         *prometheus.CounterVec
	SupplyTokens        *prometheus.GaugeVec
	InvariantViolations prometheus.Counter

	// Staking metrics
	StakeOperations *prometheus.CounterVec
	StakedTokens    prometheus.Gauge
	RewardsClaimed  prometheus.Counter

	// Governance metrics
	ProposalsCreated  *prometheus.CounterVec
	VotesCast         *prometheus.CounterVec
	ProposalsResolved *prometheus.CounterVec

	// Scheduler metrics
	JobsSubmitted *prometheus.CounterVec
	JobsFinished  *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	QueueWait     prometheus.Histogram
	ExecutionTime *prometheus.HistogramVec
	RunningJobs   prometheus.Gauge

	// API and events
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulFlush prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stakegate"
	}

	return &Metrics{
		// Ledger metrics
		TransactionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Total number of ledger transactions by kind",
		}, []string{"kind"}),
		TokensMoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_moved_total",
			Help:      "Total tokens moved by transaction kind",
		}, []string{"kind"}),
		SupplyTokens: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "supply_tokens",
			Help:      "Token supply by bucket",
		}, []string{"bucket"}),
		InvariantViolations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "invariant_violations_total",
			Help:      "Total number of detected supply invariant violations",
		}),

		// Staking metrics
		StakeOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staking",
			Name:      "operations_total",
			Help:      "Total number of staking operations by type",
		}, []string{"op"}),
		StakedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "staking",
			Name:      "staked_tokens",
			Help:      "Tokens currently locked as stake",
		}),
		RewardsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staking",
			Name:      "rewards_claimed_tokens_total",
			Help:      "Total staking rewards paid out in tokens",
		}),

		// Governance metrics
		ProposalsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "proposals_created_total",
			Help:      "Total number of proposals created by type",
		}, []string{"type"}),
		VotesCast: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "votes_cast_total",
			Help:      "Total number of votes cast by side",
		}, []string{"side"}),
		ProposalsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governance",
			Name:      "proposals_resolved_total",
			Help:      "Total number of proposal transitions by resulting status",
		}, []string{"status"}),

		// Scheduler metrics
		JobsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_submitted_total",
			Help:      "Total number of job submissions by outcome",
		}, []string{"outcome"}),
		JobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_finished_total",
			Help:      "Total number of settled jobs by terminal state",
		}, []string{"state"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Current number of queued jobs",
		}),
		QueueWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_wait_seconds",
			Help:      "Time between admission and dequeue in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		}),
		ExecutionTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "execution_duration_seconds",
			Help:      "Executor run time in seconds by outcome",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"state"}),
		RunningJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "running_jobs",
			Help:      "Current number of jobs held by executors",
		}),

		// API and events
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by type and sink",
		}, []string{"type", "sink"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulFlush: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flush_timestamp",
			Help:      "Unix timestamp of last successful state flush",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransaction records one ledger transaction.
func RecordTransaction(kind string, tokens float64) {
	DefaultMetrics.TransactionsTotal.WithLabelValues(kind).Inc()
	DefaultMetrics.TokensMoved.WithLabelValues(kind).Add(tokens)
}

// UpdateSupply sets the supply gauges, in tokens.
func UpdateSupply(circulating, burned, treasury, unissued float64) {
	DefaultMetrics.SupplyTokens.WithLabelValues("circulating").Set(circulating)
	DefaultMetrics.SupplyTokens.WithLabelValues("burned").Set(burned)
	DefaultMetrics.SupplyTokens.WithLabelValues("treasury").Set(treasury)
	DefaultMetrics.SupplyTokens.WithLabelValues("unissued").Set(unissued)
}

// RecordInvariantViolation increments the invariant violation counter.
func RecordInvariantViolation() {
	DefaultMetrics.InvariantViolations.Inc()
}

// RecordStakeOp records a stake, unstake or claim.
func RecordStakeOp(op string) {
	DefaultMetrics.StakeOperations.WithLabelValues(op).Inc()
}

// UpdateStaked sets the staked tokens gauge.
func UpdateStaked(tokens float64) {
	DefaultMetrics.StakedTokens.Set(tokens)
}

// RecordRewardsClaimed adds to the claimed rewards counter.
func RecordRewardsClaimed(tokens float64) {
	DefaultMetrics.RewardsClaimed.Add(tokens)
}

// RecordProposalCreated increments the proposals created counter.
func RecordProposalCreated(proposalType string) {
	DefaultMetrics.ProposalsCreated.WithLabelValues(proposalType).Inc()
}

// RecordVote increments the votes cast counter.
func RecordVote(support bool) {
	side := "against"
	if support {
		side = "for"
	}
	DefaultMetrics.VotesCast.WithLabelValues(side).Inc()
}

// RecordProposalStatus records a proposal transition.
func RecordProposalStatus(status string) {
	DefaultMetrics.ProposalsResolved.WithLabelValues(status).Inc()
}

// RecordSubmission records a job submission outcome.
func RecordSubmission(outcome string) {
	DefaultMetrics.JobsSubmitted.WithLabelValues(outcome).Inc()
}

// RecordJobStarted records a dequeue and its queue wait.
func RecordJobStarted(waitSeconds float64) {
	DefaultMetrics.QueueWait.Observe(waitSeconds)
	DefaultMetrics.RunningJobs.Inc()
}

// RecordJobFinished records a settled job.
func RecordJobFinished(state string, runSeconds float64) {
	DefaultMetrics.JobsFinished.WithLabelValues(state).Inc()
	DefaultMetrics.ExecutionTime.WithLabelValues(state).Observe(runSeconds)
	DefaultMetrics.RunningJobs.Dec()
}

// UpdateQueueDepth sets the queue depth gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, code string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
	DefaultMetrics.HTTPLatency.WithLabelValues(route).Observe(seconds)
}

// RecordEventPublished records an event delivered to a sink.
func RecordEventPublished(eventType, sink string) {
	DefaultMetrics.EventsPublished.WithLabelValues(eventType, sink).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordFlush marks a successful state flush.
func RecordFlush(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulFlush.Set(unixSeconds)
}

// AddUptime adds to the uptime counter.
func AddUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}
