package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldrouter/internal/types"
)

// ReportRecorder persists finished workflow reports to the global DB.
type ReportRecorder struct{}

// SaveWorkflowReport inserts one finished workflow report and returns its report_id.
func (ReportRecorder) SaveWorkflowReport(ctx context.Context, report *types.WorkflowReport) (int64, error) {
	return SaveWorkflowReport(ctx, report)
}

// SaveWorkflowReport inserts one finished workflow report and returns its report_id.
func SaveWorkflowReport(ctx context.Context, report *types.WorkflowReport) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if report == nil {
		return 0, fmt.Errorf("report cannot be nil")
	}

	steps := report.Steps
	if steps == nil {
		steps = []types.StepReceipt{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal steps: %w", err)
	}
	beforeJSON, err := marshalPosition(report.Before)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal position_before: %w", err)
	}
	lastJSON, err := marshalPosition(report.LastObserved)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal position_last_observed: %w", err)
	}
	afterJSON, err := marshalPosition(report.After)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal position_after: %w", err)
	}
	names := make([]string, len(report.Steps))
	for i, s := range report.Steps {
		names[i] = s.Name
	}

	query := `
		INSERT INTO workflow_reports (
			workflow_id, workflow, state, total_steps, failed_step,
			step_names, steps, position_before, position_last_observed, position_after,
			error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING report_id;
	`

	var reportID int64
	err = DB.QueryRowContext(ctx,
		query,
		report.WorkflowID, string(report.Workflow), string(report.State), report.TotalSteps, report.FailedStep,
		pq.Array(names), stepsJSON, beforeJSON, lastJSON, afterJSON,
		report.Error, report.StartedAt, report.FinishedAt,
	).Scan(&reportID)
	if err != nil {
		return 0, fmt.Errorf("failed to save workflow report: %w", err)
	}

	log.Info().
		Int64("report_id", reportID).
		Str("workflow_id", report.WorkflowID).
		Str("workflow", string(report.Workflow)).
		Str("state", string(report.State)).
		Msg("Workflow report saved to database")

	return reportID, nil
}

// marshalPosition encodes an optional position. A nil position binds an untyped nil,
// which the driver sends as SQL NULL; a typed nil []byte would be sent as ''.
func marshalPosition(p *types.Position) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return b, nil
}
