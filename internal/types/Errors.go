package types

import (
	"errors"
	"fmt"
)

// Error definitions shared by every layer of the router. Callers classify
// failures with errors.Is against these values.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrVenueQuery          = errors.New("venue query failed")
	ErrVenueCall           = errors.New("venue call failed")
	ErrPrecision           = errors.New("precision error")
	ErrTimeout             = errors.New("venue call timed out; outcome unknown, re-query balances before retrying")
	ErrWorkflowCanceled    = errors.New("workflow canceled between steps")
	ErrInvalidPlan         = errors.New("invalid allocation request")
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrRewardsPending      = errors.New("claimable rewards pending; harvest before unstaking")
)

// WorkflowError reports where a workflow stopped. Steps before StepIndex have
// committed; the workflow can be resumed by retrying from current balances.
type WorkflowError struct {
	Workflow   WorkflowName
	WorkflowID string
	StepIndex  int    // -1 when the workflow failed while planning
	StepName   string
	LastKnown  *Position
	Err        error
}

func (e *WorkflowError) Error() string {
	if e.StepIndex < 0 {
		return fmt.Sprintf("workflow %s (%s) aborted while planning: %v", e.Workflow, e.WorkflowID, e.Err)
	}
	return fmt.Sprintf("workflow %s (%s) aborted at step %d (%s): %v", e.Workflow, e.WorkflowID, e.StepIndex, e.StepName, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}
