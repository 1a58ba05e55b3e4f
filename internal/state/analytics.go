package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldrouter/internal/types"
)

var ErrReportNotFound = errors.New("workflow report not found")

// WorkflowCount is the number of finished runs of one workflow in one terminal state.
type WorkflowCount struct {
	Workflow types.WorkflowName  `json:"workflow"`
	State    types.WorkflowState `json:"state"`
	Count    int                 `json:"count"`
}

// RouterSummary represents high-level router statistics
type RouterSummary struct {
	TotalWorkflows   int             `json:"total_workflows"`
	SettledWorkflows int             `json:"settled_workflows"`
	AbortedWorkflows int             `json:"aborted_workflows"`
	HarvestCycles    int             `json:"harvest_cycles"`
	LastFinishedAt   *time.Time      `json:"last_finished_at,omitempty"`
	ByWorkflow       []WorkflowCount `json:"by_workflow"`
}

const reportColumns = `
	report_id, workflow_id, workflow, state, total_steps, failed_step,
	steps, position_before, position_last_observed, position_after,
	error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*types.WorkflowReport, error) {
	var r types.WorkflowReport
	var workflow, state string
	var errText sql.NullString
	var stepsJSON, beforeJSON, lastJSON, afterJSON []byte

	err := row.Scan(
		&r.ReportID, &r.WorkflowID, &workflow, &state, &r.TotalSteps, &r.FailedStep,
		&stepsJSON, &beforeJSON, &lastJSON, &afterJSON,
		&errText, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Workflow = types.WorkflowName(workflow)
	r.State = types.WorkflowState(state)
	r.Error = errText.String

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &r.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}
	for _, p := range []struct {
		data []byte
		dst  **types.Position
	}{{beforeJSON, &r.Before}, {lastJSON, &r.LastObserved}, {afterJSON, &r.After}} {
		if len(p.data) == 0 {
			continue
		}
		var pos types.Position
		if err := json.Unmarshal(p.data, &pos); err != nil {
			return nil, fmt.Errorf("failed to unmarshal position: %w", err)
		}
		*p.dst = &pos
	}
	return &r, nil
}

// GetRecentWorkflowReports retrieves the latest workflow reports, newest first.
func GetRecentWorkflowReports(limit int) ([]types.WorkflowReport, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	rows, err := DB.Query(`SELECT `+reportColumns+` FROM workflow_reports ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent workflow reports: %w", err)
	}
	defer rows.Close()

	var reports []types.WorkflowReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan workflow report row")
			continue // Skip this row and continue with others
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(reports)).Int("limit", limit).Msg("Retrieved recent workflow reports")
	return reports, nil
}

// GetWorkflowReport retrieves one report by its workflow id.
func GetWorkflowReport(workflowID string) (*types.WorkflowReport, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	r, err := scanReport(DB.QueryRow(`SELECT `+reportColumns+` FROM workflow_reports WHERE workflow_id = $1`, workflowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow report %s: %w", workflowID, err)
	}
	return r, nil
}

// GetRouterSummary aggregates finished workflows by name and state.
func GetRouterSummary() (*RouterSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := DB.Query(`
		SELECT workflow, state, COUNT(*)
		FROM workflow_reports
		GROUP BY workflow, state
		ORDER BY workflow, state`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate workflow reports: %w", err)
	}
	defer rows.Close()

	summary := &RouterSummary{ByWorkflow: []WorkflowCount{}}
	for rows.Next() {
		var c WorkflowCount
		var workflow, state string
		if err := rows.Scan(&workflow, &state, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan workflow count: %w", err)
		}
		c.Workflow, c.State = types.WorkflowName(workflow), types.WorkflowState(state)
		summary.ByWorkflow = append(summary.ByWorkflow, c)
		summary.TotalWorkflows += c.Count
		switch c.State {
		case types.StateSettled:
			summary.SettledWorkflows += c.Count
		case types.StateAborted:
			summary.AbortedWorkflows += c.Count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	var last sql.NullTime
	if err := DB.QueryRow(`SELECT MAX(finished_at) FROM workflow_reports`).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last finished workflow: %w", err)
	}
	if last.Valid {
		summary.LastFinishedAt = &last.Time
	}

	summary.HarvestCycles, err = GetCurrentCycleNumber(HarvestCounter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get harvest cycle count")
	}
	return summary, nil
}
