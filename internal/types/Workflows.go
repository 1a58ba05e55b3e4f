/*

This file contains the types describing workflow execution: names, lifecycle states, per-step receipts and the final report.

*/

package types

import (
	"time"
)

// WorkflowName identifies a caller-facing action of the routing engine.
type WorkflowName string

const (
	WorkflowLend            WorkflowName = "lend"
	WorkflowWithdraw        WorkflowName = "withdraw"
	WorkflowBoosterDeposit  WorkflowName = "booster_deposit"
	WorkflowBoosterWithdraw WorkflowName = "booster_withdraw"
	WorkflowStake           WorkflowName = "stake"
	WorkflowStakeAllLP      WorkflowName = "stake_all_lp"
	WorkflowUnstake         WorkflowName = "unstake"
	WorkflowRedeemAllStaked WorkflowName = "redeem_all_staked"
	WorkflowExchange        WorkflowName = "exchange"
	WorkflowHarvest         WorkflowName = "harvest"
	WorkflowSwapRewards     WorkflowName = "swap_rewards"
	WorkflowOneShotLend     WorkflowName = "one_shot_lend"
	WorkflowOneShotWithdraw WorkflowName = "one_shot_withdraw"
)

// WorkflowState is the lifecycle state of the engine's current workflow.
type WorkflowState string

const (
	StateIdle      WorkflowState = "IDLE"
	StatePlanning  WorkflowState = "PLANNING"
	StateExecuting WorkflowState = "EXECUTING"
	StateSettled   WorkflowState = "SETTLED"
	StateAborted   WorkflowState = "ABORTED"
)

// IsTerminal reports whether the state ends a workflow.
func (s WorkflowState) IsTerminal() bool {
	return s == StateSettled || s == StateAborted
}

// StepReceipt records one venue call of a workflow.
type StepReceipt struct {
	Index      int               `json:"index"`
	Name       string            `json:"name"`
	Venue      string            `json:"venue"`
	Outputs    map[string]string `json:"outputs,omitempty"` // raw integer amounts as decimal strings
	Success    bool              `json:"success"`
	Skipped    bool              `json:"skipped,omitempty"` // zero-amount step, no venue call made
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// WorkflowReport is the complete record of one workflow run.
type WorkflowReport struct {
	ReportID     int64         `json:"report_id,omitempty"` // Auto-incremented by DB
	WorkflowID   string        `json:"workflow_id"`
	Workflow     WorkflowName  `json:"workflow"`
	State        WorkflowState `json:"state"`
	TotalSteps   int           `json:"total_steps"`
	FailedStep   int           `json:"failed_step"` // -1 unless ABORTED during execution
	Steps        []StepReceipt `json:"steps"`
	Before       *Position     `json:"before,omitempty"`
	LastObserved *Position     `json:"last_observed,omitempty"` // position immediately before the last attempted step
	After        *Position     `json:"after,omitempty"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// CompletedSteps returns the number of steps that committed.
func (r WorkflowReport) CompletedSteps() int {
	n := 0
	for _, s := range r.Steps {
		if s.Success {
			n++
		}
	}
	return n
}
