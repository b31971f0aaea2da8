package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/blackbelt-platform/core/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blackbelt"

var (
	// Reminder scheduler

	RemindersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_total",
		Help:      "Reminder dispatch attempts, by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	InvitationsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invitations_expired_total",
		Help:      "Invitations moved to expired by the scheduled pass.",
	})

	PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reminder_pass_duration_seconds",
		Help:      "Time taken for one scheduled reminder pass.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	PassErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminder_pass_errors_total",
		Help:      "Invitations a scheduled pass could not evaluate.",
	})

	PassesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminder_passes_skipped_total",
		Help:      "Cron ticks skipped because another instance held the lease.",
	})

	InvitationsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reminder_invitations_in_flight",
		Help:      "Invitations currently being evaluated by the pass.",
	})

	// Token sweeper

	TokensSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_swept_total",
		Help:      "Expired tokens deleted by the sweeper.",
	})

	SweepCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_cycle_duration_seconds",
		Help:      "Time taken for one sweeper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Auth

	AuthEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_total",
		Help:      "Auth operations, by event and outcome.",
	}, []string{"event", "outcome"})

	// Process lifecycle

	SchedulerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_start_time_seconds",
		Help:      "Unix timestamp when the scheduler started.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		RemindersTotal,
		InvitationsExpiredTotal,
		PassDuration,
		PassErrorsTotal,
		PassesSkippedTotal,
		InvitationsInFlight,
		TokensSweptTotal,
		SweepCycleDuration,
		AuthEventsTotal,
		SchedulerStartTime,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// Prober is satisfied by *health.Checker.
type Prober interface {
	Liveness(ctx context.Context) health.HealthResult
	Readiness(ctx context.Context) health.HealthResult
}

// NewServer serves /metrics plus the liveness and readiness probes.
func NewServer(addr string, checker Prober) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", probe(checker.Liveness))
	mux.HandleFunc("/readyz", probe(checker.Readiness))
	return &http.Server{Addr: addr, Handler: mux}
}

func probe(check func(context.Context) health.HealthResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := check(r.Context())
		status := http.StatusOK
		if result.Status != "up" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(result)
	}
}
