package venue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"

	"github.com/elys-network/yieldrouter/internal/types"
)

// Guard bounds every venue call with a caller-configured timeout. A call that
// exceeds it fails with types.ErrTimeout and is never retried: the venue may
// still have executed it.
type Guard struct {
	QueryTimeout time.Duration
	CallTimeout  time.Duration
}

func NewGuard(queryTimeout, callTimeout time.Duration) Guard {
	return Guard{QueryTimeout: queryTimeout, CallTimeout: callTimeout}
}

// Query runs a read-only venue call. Failures are classified as types.ErrVenueQuery.
func Query[R any](ctx context.Context, g Guard, venueName, op string, fn func(ctx context.Context) (R, error)) (R, error) {
	return run(ctx, g.QueryTimeout, types.ErrVenueQuery, venueName, op, fn)
}

// Call runs a state-changing venue call. Unclassified failures become types.ErrVenueCall.
func Call[R any](ctx context.Context, g Guard, venueName, op string, fn func(ctx context.Context) (R, error)) (R, error) {
	return run(ctx, g.CallTimeout, types.ErrVenueCall, venueName, op, fn)
}

func run[R any](ctx context.Context, limit time.Duration, class error, venueName, op string, fn func(ctx context.Context) (R, error)) (R, error) {
	var res R
	var err error
	if limit <= 0 {
		res, err = fn(ctx)
	} else {
		res, err = failsafe.With[R](timeout.New[R](limit)).
			WithContext(ctx).
			GetWithExecution(func(exec failsafe.Execution[R]) (R, error) {
				return fn(exec.Context())
			})
	}
	if err == nil {
		return res, nil
	}

	var zero R
	switch {
	case errors.Is(err, timeout.ErrExceeded):
		return zero, errors.Join(types.ErrTimeout, fmt.Errorf("%s.%s exceeded %s", venueName, op, limit))
	case classified(err):
		return zero, fmt.Errorf("%s.%s: %w", venueName, op, err)
	default:
		return zero, errors.Join(class, fmt.Errorf("%s.%s: %w", venueName, op, err))
	}
}

// classified reports whether err already carries a taxonomy class.
func classified(err error) bool {
	for _, class := range []error{
		types.ErrVenueQuery, types.ErrVenueCall, types.ErrTimeout, types.ErrSlippageExceeded,
		types.ErrInsufficientBalance, types.ErrPrecision, types.ErrUnknownAsset,
	} {
		if errors.Is(err, class) {
			return true
		}
	}
	return false
}

// ErrorClass names the taxonomy class of err for logs and metrics.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, types.ErrTimeout):
		return "timeout"
	case errors.Is(err, types.ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, types.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, types.ErrPrecision):
		return "precision"
	case errors.Is(err, types.ErrWorkflowCanceled):
		return "canceled"
	case errors.Is(err, types.ErrRewardsPending):
		return "rewards_pending"
	case errors.Is(err, types.ErrInvalidPlan), errors.Is(err, types.ErrUnknownAsset):
		return "invalid_plan"
	case errors.Is(err, types.ErrVenueQuery):
		return "venue_query"
	case errors.Is(err, types.ErrVenueCall):
		return "venue_call"
	default:
		return "other"
	}
}
