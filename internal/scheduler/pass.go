package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackbelt-platform/core/internal/metrics"
	"github.com/blackbelt-platform/core/internal/repository"
	"github.com/blackbelt-platform/core/internal/usecase"
)

// defaultBatchSize bounds how many due invitations one ListDue call returns.
const defaultBatchSize = 500

// Processor evaluates one invitation under its row lock.
type Processor interface {
	Process(ctx context.Context, invitationID string, now time.Time) (usecase.Outcome, error)
}

// PassResult summarises one scheduled pass.
type PassResult struct {
	Evaluated int
	Reminded  int
	Failed    int // dispatch failures, recorded as failed reminders
	Expired   int
	Errors    int // invitations that could not be evaluated
}

func (r PassResult) add(o usecase.Outcome) PassResult {
	switch o {
	case usecase.OutcomeReminded:
		r.Reminded++
	case usecase.OutcomeFailed:
		r.Failed++
	case usecase.OutcomeExpired:
		r.Expired++
	}
	return r
}

type Pass struct {
	invitations repository.InvitationRepository
	processor   Processor
	logger      *slog.Logger
	concurrency int
	batchSize   int
}

func NewPass(invitations repository.InvitationRepository, processor Processor, logger *slog.Logger, concurrency int) *Pass {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pass{
		invitations: invitations,
		processor:   processor,
		logger:      logger.With("component", "reminder_pass"),
		concurrency: concurrency,
		batchSize:   defaultBatchSize,
	}
}

// Run evaluates every invitation due at now. Each invitation is processed
// independently: an error on one is counted and logged, the rest continue.
// Running it twice with the same now sends nothing the second time.
func (p *Pass) Run(ctx context.Context, now time.Time) (PassResult, error) {
	start := time.Now()
	defer func() { metrics.PassDuration.Observe(time.Since(start).Seconds()) }()

	var (
		result PassResult
		mu     sync.Mutex
		cursor *repository.DueInvitation
	)

	// Pages advance by (due_at, id) so rows that stay due after a failed
	// dispatch or an error never hide the ones queued behind them.
	for {
		due, err := p.invitations.ListDue(ctx, now, cursor, p.batchSize)
		if err != nil {
			return result, fmt.Errorf("list due invitations: %w", err)
		}
		if len(due) == 0 {
			break
		}

		sem := make(chan struct{}, p.concurrency)
		var wg sync.WaitGroup
		for _, d := range due {
			if ctx.Err() != nil {
				break
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(id string) {
				metrics.InvitationsInFlight.Inc()
				defer metrics.InvitationsInFlight.Dec()
				defer func() { <-sem }()
				defer wg.Done()

				outcome, err := p.processor.Process(ctx, id, now)

				mu.Lock()
				defer mu.Unlock()
				result.Evaluated++
				if err != nil {
					result.Errors++
					metrics.PassErrorsTotal.Inc()
					p.logger.ErrorContext(ctx, "evaluate invitation", "invitation_id", id, "error", err)
					return
				}
				result = result.add(outcome)
			}(d.ID)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return result, err
		}
		if len(due) < p.batchSize {
			break
		}
		last := due[len(due)-1]
		cursor = &last
	}

	p.logger.InfoContext(ctx, "reminder pass finished",
		"now", now,
		"evaluated", result.Evaluated,
		"reminded", result.Reminded,
		"failed", result.Failed,
		"expired", result.Expired,
		"errors", result.Errors,
		"duration", time.Since(start),
	)
	return result, nil
}
