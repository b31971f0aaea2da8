package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger is satisfied by *pgxpool.Pool and *redis.Lease.
type Pinger interface {
	Ping(ctx context.Context) error
}

type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type dependency struct {
	name   string
	pinger Pinger
}

// Checker verifies that all dependencies are reachable.
type Checker struct {
	deps   []dependency
	logger *slog.Logger
	gauge  *prometheus.GaugeVec
}

// NewChecker creates a health checker for postgres and registers its
// Prometheus gauge. Further dependencies are added with Add.
func NewChecker(db Pinger, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blackbelt",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		deps:   []dependency{{name: "postgres", pinger: db}},
		logger: logger.With("component", "health"),
		gauge:  gauge,
	}
}

// Add registers another dependency for readiness checks.
func (c *Checker) Add(name string, p Pinger) {
	c.deps = append(c.deps, dependency{name: name, pinger: p})
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency concurrently under one shared deadline.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult, len(c.deps)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, d := range c.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := d.pinger.Ping(checkCtx)
			check := CheckResult{Status: "up", LatencyMS: time.Since(start).Milliseconds()}
			up := 1.0
			if err != nil {
				c.logger.Warn("health check failed", "dependency", d.name, "error", err)
				check.Status, check.Error, up = "down", err.Error(), 0
			}
			c.gauge.WithLabelValues(d.name).Set(up)

			mu.Lock()
			defer mu.Unlock()
			result.Checks[d.name] = check
			if err != nil {
				result.Status = "down"
			}
		}()
	}
	wg.Wait()

	return result
}
