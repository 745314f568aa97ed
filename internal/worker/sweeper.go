// Package worker runs the periodic membership expiry and pending payment sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/teambition/rrule-go"
)

// Expirer moves memberships past their end date to expired.
type Expirer interface {
	ExpireSweep(ctx context.Context, now time.Time) (int64, error)
}

// PendingCounter reports payments still waiting on the gateway.
type PendingCounter interface {
	CountPendingBefore(ctx context.Context, t time.Time) (int64, error)
}

// Sweeper runs on an RRULE schedule.
type Sweeper struct {
	rule        *rrule.RRule
	staleAfter  time.Duration
	memberships Expirer
	payments    PendingCounter
	now         func() time.Time
}

// NewSweeper parses schedule (e.g. "FREQ=MINUTELY;INTERVAL=15") anchored at the current minute.
func NewSweeper(schedule string, staleAfter time.Duration, memberships Expirer, payments PendingCounter, now func() time.Time) (*Sweeper, error) {
	rule, err := rrule.StrToRRule(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if now == nil {
		now = time.Now
	}
	rule.DTStart(now().UTC().Truncate(time.Minute))

	return &Sweeper{
		rule:        rule,
		staleAfter:  staleAfter,
		memberships: memberships,
		payments:    payments,
		now:         now,
	}, nil
}

// Next returns the first scheduled run strictly after t, or the zero time
// when the schedule is exhausted.
func (s *Sweeper) Next(t time.Time) time.Time {
	return s.rule.After(t, false)
}

// RunOnce expires overdue memberships and reports stale pending payments.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.now().UTC()
	var errs []error

	expired, err := s.memberships.ExpireSweep(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire memberships: %w", err))
	} else if expired > 0 {
		log.Printf("Expired %d memberships", expired)
	}

	if s.staleAfter > 0 {
		stale, err := s.payments.CountPendingBefore(ctx, now.Add(-s.staleAfter))
		if err != nil {
			errs = append(errs, fmt.Errorf("count stale payments: %w", err))
		} else if stale > 0 {
			log.Printf("Warning: %d payments pending for more than %s without a gateway notification", stale, s.staleAfter)
		}
	}

	return errors.Join(errs...)
}

// Run sweeps immediately, then on every scheduled occurrence until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Println("Running initial sweep...")
	if err := s.RunOnce(ctx); err != nil {
		log.Printf("Sweep error: %v", err)
	}

	for {
		next := s.Next(s.now())
		if next.IsZero() {
			log.Println("Sweep schedule exhausted")
			return nil
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := s.RunOnce(ctx); err != nil {
				log.Printf("Sweep error: %v", err)
			}
		}
	}
}
