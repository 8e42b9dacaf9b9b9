// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// StartSweeps runs the periodic round and deposit sweeps. Each job skips a
// tick while its previous run is still going.
func (s *MatchService) StartSweeps(ctx context.Context, roundEvery, depositEvery time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(schedulerClock(s.clock)))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	// Every few seconds: close rounds past their deadline, resume stuck matches
	if _, err := sched.NewJob(
		gocron.DurationJob(roundEvery),
		gocron.NewTask(func() {
			s.SweepRounds(ctx)
		}),
		gocron.WithName("round-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("schedule round sweep: %w", err)
	}

	// Every minute: cancel unfunded matches, retry failed refunds
	if _, err := sched.NewJob(
		gocron.DurationJob(depositEvery),
		gocron.NewTask(func() {
			s.SweepDeposits(ctx)
		}),
		gocron.WithName("deposit-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("schedule deposit sweep: %w", err)
	}

	sched.Start()
	log.Printf("[Scheduler] Sweeps started (rounds every %s, deposits every %s)", roundEvery, depositEvery)
	return sched, nil
}

func schedulerClock(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}
