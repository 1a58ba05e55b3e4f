package harvester

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldrouter/internal/logger"
)

const (
	DefaultBreakerThreshold = 3
	DefaultBreakerDelay     = 6 * time.Hour
)

// Cycle outcomes as reported to metrics.
const (
	OutcomeReinvested = "reinvested"
	OutcomeBelowMin   = "below_threshold"
	OutcomeFailed     = "failed"
	OutcomeSkipped    = "breaker_open"
)

// LoopConfig configures the periodic harvest loop.
type LoopConfig struct {
	BreakerThreshold uint          // consecutive failed cycles before cycles are skipped
	BreakerDelay     time.Duration // how long cycles are skipped once the breaker opens

	// NextCycle returns the number of the cycle about to run. Defaults to an in-memory counter.
	NextCycle func() (int, error)
}

// Loop harvests and reinvests on a fixed interval. Repeated failures open a
// circuit breaker; halting the loop is caller policy and never touches the engine.
type Loop struct {
	harvester *Harvester
	breaker   circuitbreaker.CircuitBreaker[any]
	nextCycle func() (int, error)
	counter   atomic.Int64
	logger    zerolog.Logger
}

func NewLoop(h *Harvester, cfg LoopConfig) *Loop {
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = DefaultBreakerThreshold
	}
	delay := cfg.BreakerDelay
	if delay <= 0 {
		delay = DefaultBreakerDelay
	}
	l := &Loop{
		harvester: h,
		logger:    logger.GetForComponent("harvest_loop"),
	}
	l.breaker = circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(threshold).
		WithDelay(delay).
		OnOpen(func(e circuitbreaker.StateChangedEvent) {
			l.logger.Warn().Dur("delay", delay).Msg("Harvest breaker opened, skipping cycles")
		}).
		OnClose(func(e circuitbreaker.StateChangedEvent) {
			l.logger.Info().Msg("Harvest breaker closed")
		}).
		Build()
	l.nextCycle = cfg.NextCycle
	if l.nextCycle == nil {
		l.nextCycle = func() (int, error) { return int(l.counter.Add(1)), nil }
	}
	return l
}

// BreakerOpen reports whether cycles are currently being skipped.
func (l *Loop) BreakerOpen() bool {
	return l.breaker.IsOpen()
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	l.logger.Info().Dur("interval", interval).Msg("Starting harvest loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Harvest loop stopped due to context cancellation")
			return
		case <-ticker.C:
			l.RunCycle(ctx)
		}
	}
}

// RunCycle runs one harvest cycle and returns its outcome.
func (l *Loop) RunCycle(ctx context.Context) string {
	cycle, err := l.nextCycle()
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to advance cycle counter, continuing")
	}
	cycleLogger := l.logger.With().
		Int("cycle", cycle).
		Str("cycle_id", uuid.New().String()).
		Logger()

	outcome := OutcomeFailed
	err = failsafe.With[any](l.breaker).WithContext(ctx).Run(func() error {
		var err error
		outcome, err = l.cycle(ctx, cycleLogger)
		return err
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		outcome = OutcomeSkipped
		cycleLogger.Warn().Msg("Harvest cycle skipped, breaker open")
	case err != nil:
		outcome = OutcomeFailed
		cycleLogger.Error().Err(err).Msg("Harvest cycle failed")
	}
	l.harvester.metrics.ObserveHarvestCycle(outcome)
	return outcome
}

func (l *Loop) cycle(ctx context.Context, cycleLogger zerolog.Logger) (string, error) {
	pos, err := l.harvester.engine.Position(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	if !l.harvester.Pending(pos) {
		cycleLogger.Info().Msg("Claimable rewards below harvest threshold")
		return OutcomeBelowMin, nil
	}

	result, err := l.harvester.HarvestAndReinvest(ctx, nil)
	if err != nil {
		return OutcomeFailed, err
	}
	cycleLogger.Info().
		Interface("claimed", claimedStrings(result.Claimed)).
		Str("received", result.Received.String()).
		Str("shares_added", result.SharesAdded.String()).
		Msg("Harvest cycle completed")
	return OutcomeReinvested, nil
}
