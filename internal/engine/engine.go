/*

This file contains the routing engine. One engine owns one custody account and runs one workflow at a time.

A workflow is planned against a single position snapshot, then executed as a linear list of steps. Each step is exactly one
venue call and its outputs feed the next step directly. Balances are never re-queried to size a later step.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/policy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
)

// ReportSink receives every finished workflow report. A failing sink is logged
// and never changes the workflow outcome.
type ReportSink interface {
	SaveWorkflowReport(ctx context.Context, report *types.WorkflowReport) (int64, error)
}

// Config holds the dependencies of one engine instance.
type Config struct {
	Ledger  *ledger.Ledger
	Venues  venue.Set
	Guard   venue.Guard
	Params  types.StrategyParameters
	Sink    ReportSink             // optional
	Metrics *metrics.RouterMetrics // optional
	Now     func() time.Time       // defaults to time.Now
}

type Engine struct {
	run sync.Mutex // held for the full duration of a workflow

	mu     sync.RWMutex
	state  types.WorkflowState
	params types.StrategyParameters
	last   *types.WorkflowReport

	ledger  *ledger.Ledger
	policy  *policy.Policy
	venues  venue.Set
	guard   venue.Guard
	sink    ReportSink
	metrics *metrics.RouterMetrics
	now     func() time.Time
	logger  zerolog.Logger
}

// NewEngine creates an engine with dependency injection.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		state:   types.StateIdle,
		params:  cfg.Params,
		ledger:  cfg.Ledger,
		policy:  policy.New(len(cfg.Ledger.BaseAssets())),
		venues:  cfg.Venues,
		guard:   cfg.Guard,
		sink:    cfg.Sink,
		metrics: cfg.Metrics,
		now:     now,
		logger:  logger.GetForComponent("routing_engine"),
	}

	e.logger.Info().
		Str("pool", cfg.Venues.Pool.Name()).
		Str("booster", cfg.Venues.Booster.Name()).
		Int("swaps", len(cfg.Venues.Swaps)).
		Str("reinvest_asset", string(cfg.Params.ReinvestAsset)).
		Msg("Routing engine created")
	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Venues.Tokens == nil {
		return errors.New("token reader cannot be nil")
	}
	if cfg.Venues.Pool == nil {
		return errors.New("pool venue cannot be nil")
	}
	if cfg.Venues.Booster == nil {
		return errors.New("booster venue cannot be nil")
	}
	if cfg.Guard.CallTimeout < 0 || cfg.Guard.QueryTimeout < 0 {
		return errors.New("venue timeouts cannot be negative")
	}
	return cfg.Params.Validate(cfg.Ledger.Assets())
}

// State returns IDLE before the first workflow, the live state while one runs
// and the terminal state of the most recent one afterwards.
func (e *Engine) State() types.WorkflowState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastReport returns the report of the most recently finished workflow, nil if none.
func (e *Engine) LastReport() *types.WorkflowReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

func (e *Engine) Params() types.StrategyParameters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// SetParams replaces the strategy parameters. Workflows already planned keep the old set.
func (e *Engine) SetParams(params types.StrategyParameters) error {
	if err := params.Validate(e.ledger.Assets()); err != nil {
		return err
	}
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	e.logger.Info().Str("reinvest_asset", string(params.ReinvestAsset)).Msg("Strategy parameters updated")
	return nil
}

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

func (e *Engine) Policy() *policy.Policy { return e.policy }

func (e *Engine) Guard() venue.Guard { return e.guard }

// Position takes a fresh snapshot outside of any workflow.
func (e *Engine) Position(ctx context.Context) (types.Position, error) {
	pos, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return types.Position{}, err
	}
	e.metrics.ObservePosition(e.ledger.Assets(), pos)
	return pos, nil
}

func (e *Engine) setState(s types.WorkflowState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}
