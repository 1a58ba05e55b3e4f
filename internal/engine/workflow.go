package engine

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
)

// ErrStepSkipped is returned by a step whose input amount is zero. The step is
// recorded as successful and skipped, and no venue call is made.
var ErrStepSkipped = errors.New("step skipped: zero amount")

// Outputs labels the raw amounts a step produced.
type Outputs map[string]sdkmath.Int

func (o Outputs) strings() map[string]string {
	if len(o) == 0 {
		return nil
	}
	out := make(map[string]string, len(o))
	for k, v := range o {
		if v.IsNil() {
			continue
		}
		out[k] = v.String()
	}
	return out
}

// Step is one venue call of a workflow. Run receives a context that is not
// canceled by the caller; it is bounded only by the venue call timeout.
type Step struct {
	Name  string
	Venue string
	Run   func(ctx context.Context) (Outputs, error)
}

// PlanFunc builds the step list from the position observed when the workflow starts.
type PlanFunc func(ctx context.Context, before types.Position) ([]Step, error)

// Execute runs one workflow to a terminal state. Concurrent calls queue.
// On abort the returned error is a *types.WorkflowError and the report is still returned.
func (e *Engine) Execute(ctx context.Context, name types.WorkflowName, plan PlanFunc) (*types.WorkflowReport, error) {
	e.run.Lock()
	defer e.run.Unlock()

	report := &types.WorkflowReport{
		WorkflowID: uuid.New().String(),
		Workflow:   name,
		FailedStep: -1,
		StartedAt:  e.now(),
	}
	wfLogger := e.logger.With().
		Str("workflow_id", report.WorkflowID).
		Str("workflow", string(name)).
		Logger()

	e.setState(types.StatePlanning)
	wfLogger.Info().Msg("--- Workflow accepted ---")

	if err := ctx.Err(); err != nil {
		return e.abort(report, wfLogger, -1, "", nil, errors.Join(types.ErrWorkflowCanceled, err))
	}
	before, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return e.abort(report, wfLogger, -1, "", nil, err)
	}
	report.Before = &before

	steps, err := plan(ctx, before)
	if err != nil {
		return e.abort(report, wfLogger, -1, "", &before, err)
	}
	report.TotalSteps = len(steps)
	report.Steps = make([]types.StepReceipt, 0, len(steps))

	e.setState(types.StateExecuting)
	wfLogger.Info().Int("steps", len(steps)).Msg("Plan ready, executing")

	observed := before
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return e.abort(report, wfLogger, i, step.Name, &observed, errors.Join(types.ErrWorkflowCanceled, err))
		}
		if i > 0 {
			snap, err := e.ledger.Snapshot(ctx)
			if err != nil {
				return e.abort(report, wfLogger, i, step.Name, &observed, err)
			}
			observed = snap
		}
		lastObserved := observed
		report.LastObserved = &lastObserved

		receipt, err := e.runStep(context.WithoutCancel(ctx), name, i, step, wfLogger)
		report.Steps = append(report.Steps, receipt)
		if err != nil {
			return e.abort(report, wfLogger, i, step.Name, &lastObserved, err)
		}
	}

	after, err := e.ledger.Snapshot(context.WithoutCancel(ctx))
	if err != nil {
		wfLogger.Warn().Err(err).Msg("Could not observe position after settlement")
	} else {
		report.After = &after
		e.metrics.ObservePosition(e.ledger.Assets(), after)
	}

	report.State = types.StateSettled
	e.finish(report, wfLogger)
	wfLogger.Info().
		Int("steps_completed", report.CompletedSteps()).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("--- Workflow settled ---")
	return report, nil
}

func (e *Engine) runStep(ctx context.Context, name types.WorkflowName, index int, step Step, wfLogger zerolog.Logger) (types.StepReceipt, error) {
	receipt := types.StepReceipt{
		Index:     index,
		Name:      step.Name,
		Venue:     step.Venue,
		StartedAt: e.now(),
	}
	started := time.Now()
	out, err := venue.Call(ctx, e.guard, step.Venue, step.Name, step.Run)
	e.metrics.ObserveStep(name, step.Name, time.Since(started))
	receipt.FinishedAt = e.now()

	switch {
	case err == nil:
		receipt.Success = true
		receipt.Outputs = out.strings()
		wfLogger.Info().
			Int("step", index).
			Str("step_name", step.Name).
			Str("venue", step.Venue).
			Interface("outputs", receipt.Outputs).
			Msg("Step committed")
		return receipt, nil
	case errors.Is(err, ErrStepSkipped):
		receipt.Success = true
		receipt.Skipped = true
		wfLogger.Info().Int("step", index).Str("step_name", step.Name).Msg("Step skipped, nothing to move")
		return receipt, nil
	default:
		receipt.Error = err.Error()
		e.metrics.ObserveVenueError(step.Venue, venue.ErrorClass(err))
		return receipt, err
	}
}

func (e *Engine) abort(report *types.WorkflowReport, wfLogger zerolog.Logger, index int, stepName string, lastKnown *types.Position, cause error) (*types.WorkflowReport, error) {
	report.State = types.StateAborted
	report.FailedStep = index
	report.Error = cause.Error()
	e.finish(report, wfLogger)

	event := wfLogger.Error().Err(cause).Str("class", venue.ErrorClass(cause))
	if index >= 0 {
		event = event.Int("failed_step", index).Str("step_name", stepName).Int("steps_completed", report.CompletedSteps())
	}
	event.Msg("--- Workflow aborted ---")

	return report, &types.WorkflowError{
		Workflow:   report.Workflow,
		WorkflowID: report.WorkflowID,
		StepIndex:  index,
		StepName:   stepName,
		LastKnown:  lastKnown,
		Err:        cause,
	}
}

func (e *Engine) finish(report *types.WorkflowReport, wfLogger zerolog.Logger) {
	report.FinishedAt = e.now()
	e.metrics.ObserveWorkflow(report.Workflow, report.State)

	if e.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), reportSaveTimeout)
		id, err := e.sink.SaveWorkflowReport(ctx, report)
		cancel()
		if err != nil {
			wfLogger.Error().Err(err).Msg("Failed to save workflow report")
		} else {
			report.ReportID = id
		}
	}

	e.mu.Lock()
	e.state = report.State
	e.last = report
	e.mu.Unlock()
}

const reportSaveTimeout = 10 * time.Second
