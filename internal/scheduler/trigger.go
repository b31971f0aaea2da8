package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackbelt-platform/core/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Locker grants a cluster-wide lease. Acquire reports false, nil when another
// holder owns it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

const (
	passLeaseKey = "blackbelt:reminder-pass"
	passLeaseTTL = 30 * time.Minute
)

// Trigger runs the pass on a cron schedule. With a Locker only one instance
// runs each tick; without one every instance runs and row locks keep the
// outcome correct.
type Trigger struct {
	pass   *Pass
	locker Locker
	spec   string
	logger *slog.Logger
	now    func() time.Time
}

func NewTrigger(pass *Pass, locker Locker, spec string, logger *slog.Logger) *Trigger {
	return &Trigger{
		pass:   pass,
		locker: locker,
		spec:   spec,
		logger: logger.With("component", "trigger"),
		now:    time.Now,
	}
}

// Start blocks until ctx is cancelled, then waits for a running pass to end.
func (t *Trigger) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(t.spec, func() { t.Fire(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", t.spec, err)
	}

	c.Start()
	t.logger.Info("trigger started", "schedule", t.spec)

	<-ctx.Done()
	<-c.Stop().Done()
	t.logger.Info("trigger shut down")
	return nil
}

// Fire runs one pass now if the lease can be taken.
func (t *Trigger) Fire(ctx context.Context) {
	if t.locker != nil {
		release, ok, err := t.locker.Acquire(ctx, passLeaseKey, passLeaseTTL)
		if err != nil {
			t.logger.Error("acquire pass lease", "error", err)
			return
		}
		if !ok {
			metrics.PassesSkippedTotal.Inc()
			t.logger.Info("pass skipped, lease held elsewhere")
			return
		}
		defer release()
	}

	if _, err := t.pass.Run(ctx, t.now()); err != nil {
		t.logger.Error("reminder pass", "error", err)
	}
}
