package engine

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/policy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
)

// WithdrawRequest describes a pool exit.
type WithdrawRequest struct {
	Mode policy.WithdrawMode

	// MinOut is the floor for a single-asset exit. When nil the floor is the venue
	// quote less the strategy slippage tolerance.
	MinOut sdkmath.Int

	// AllowPendingRewards lets an exit that unstakes run while rewards are claimable.
	AllowPendingRewards bool
}

// ExchangeRequest swaps one base asset for another on the pool.
type ExchangeRequest struct {
	From   int
	To     int
	Amount sdkmath.Int // nil swaps the full balance
	MinOut sdkmath.Int // nil uses the rescaled input less the strategy slippage tolerance
}

// Lend deposits base assets into the pool and returns the pool shares minted.
func (e *Engine) Lend(ctx context.Context, mode policy.DepositMode) (sdkmath.Int, *types.WorkflowReport, error) {
	minted := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowLend, func(ctx context.Context, before types.Position) ([]Step, error) {
		plan, err := e.policy.PlanDeposit(before.BaseBalances, mode)
		if err != nil {
			return nil, err
		}
		return []Step{e.addLiquidityStep(plan, &minted)}, nil
	})
	return minted, report, err
}

// Withdraw burns free pool shares and returns the base amounts received, by coin index.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) ([]sdkmath.Int, *types.WorkflowReport, error) {
	var amounts []sdkmath.Int
	report, err := e.Execute(ctx, types.WorkflowWithdraw, func(ctx context.Context, before types.Position) ([]Step, error) {
		plan, err := e.policy.PlanWithdrawal(before.PoolShares, req.Mode)
		if err != nil {
			return nil, err
		}
		params := e.Params()
		return []Step{e.removeLiquidityStep(fixed(plan.Shares), plan.Target, req.MinOut, params.WithdrawSlippageBps, &amounts)}, nil
	})
	return amounts, report, err
}

// DepositToBooster moves free pool shares into the booster, staking them in the
// same call when stake is set. A nil amount moves every free share.
func (e *Engine) DepositToBooster(ctx context.Context, shares sdkmath.Int, stake bool) (sdkmath.Int, *types.WorkflowReport, error) {
	receipts := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowBoosterDeposit, func(ctx context.Context, before types.Position) ([]Step, error) {
		amount, err := planAmount("pool shares", shares, before.PoolShares)
		if err != nil {
			return nil, err
		}
		return []Step{e.boosterDepositStep(fixed(amount), stake, &receipts)}, nil
	})
	return receipts, report, err
}

// StakeDeposited stakes unstaked booster receipts. A nil amount stakes all of them.
func (e *Engine) StakeDeposited(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, *types.WorkflowReport, error) {
	staked := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowStake, func(ctx context.Context, before types.Position) ([]Step, error) {
		planned, err := planAmount("booster deposit", amount, before.BoosterDeposit)
		if err != nil {
			return nil, err
		}
		return []Step{e.stakeStep(fixed(planned), &staked)}, nil
	})
	return staked, report, err
}

// Unstake moves staked receipts back to the unstaked deposit tier. A nil amount unstakes all.
func (e *Engine) Unstake(ctx context.Context, amount sdkmath.Int, allowPendingRewards bool) (sdkmath.Int, *types.WorkflowReport, error) {
	unstaked := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowUnstake, func(ctx context.Context, before types.Position) ([]Step, error) {
		if err := e.checkRewardsSettled(before, allowPendingRewards); err != nil {
			return nil, err
		}
		planned, err := planAmount("staked", amount, before.Staked)
		if err != nil {
			return nil, err
		}
		return []Step{e.unstakeStep(fixed(planned), &unstaked)}, nil
	})
	return unstaked, report, err
}

// WithdrawFromBooster redeems unstaked receipts for pool shares. A nil amount redeems all.
func (e *Engine) WithdrawFromBooster(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, *types.WorkflowReport, error) {
	released := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowBoosterWithdraw, func(ctx context.Context, before types.Position) ([]Step, error) {
		planned, err := planAmount("booster deposit", amount, before.BoosterDeposit)
		if err != nil {
			return nil, err
		}
		return []Step{e.boosterWithdrawStep(fixed(planned), &released)}, nil
	})
	return released, report, err
}

// StakeAllLP deposits and stakes every free pool share in one booster call.
func (e *Engine) StakeAllLP(ctx context.Context) (sdkmath.Int, *types.WorkflowReport, error) {
	staked := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowStakeAllLP, func(ctx context.Context, before types.Position) ([]Step, error) {
		return []Step{e.boosterDepositStep(fixed(before.PoolShares), true, &staked)}, nil
	})
	return staked, report, err
}

// RedeemAllStaked unstakes every staked receipt and redeems all unstaked receipts
// for pool shares. It returns the pool shares released.
func (e *Engine) RedeemAllStaked(ctx context.Context, allowPendingRewards bool) (sdkmath.Int, *types.WorkflowReport, error) {
	released := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowRedeemAllStaked, func(ctx context.Context, before types.Position) ([]Step, error) {
		if err := e.checkRewardsSettled(before, allowPendingRewards); err != nil {
			return nil, err
		}
		unstaked := sdkmath.ZeroInt()
		return []Step{
			e.unstakeStep(fixed(before.Staked), &unstaked),
			e.boosterWithdrawStep(sum(ref(&unstaked), fixed(before.BoosterDeposit)), &released),
		}, nil
	})
	return released, report, err
}

// OneShotLend deposits base assets into the pool and stakes exactly the shares
// minted. It returns the receipts staked.
func (e *Engine) OneShotLend(ctx context.Context, mode policy.DepositMode) (sdkmath.Int, *types.WorkflowReport, error) {
	staked := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowOneShotLend, func(ctx context.Context, before types.Position) ([]Step, error) {
		plan, err := e.policy.PlanDeposit(before.BaseBalances, mode)
		if err != nil {
			return nil, err
		}
		minted := sdkmath.ZeroInt()
		return []Step{
			e.addLiquidityStep(plan, &minted),
			e.boosterDepositStep(ref(&minted), true, &staked),
		}, nil
	})
	return staked, report, err
}

// OneShotWithdraw unstakes, redeems and exits the pool. In ALL mode every tier is
// drained: what each step released plus what the next tier already held. Partial
// modes size the staked amount with the policy and chain only step outputs.
func (e *Engine) OneShotWithdraw(ctx context.Context, req WithdrawRequest) ([]sdkmath.Int, *types.WorkflowReport, error) {
	var amounts []sdkmath.Int
	report, err := e.Execute(ctx, types.WorkflowOneShotWithdraw, func(ctx context.Context, before types.Position) ([]Step, error) {
		if err := e.checkRewardsSettled(before, req.AllowPendingRewards); err != nil {
			return nil, err
		}
		plan, err := e.policy.PlanWithdrawal(before.Staked, req.Mode)
		if err != nil {
			return nil, err
		}
		params := e.Params()

		unstaked := sdkmath.ZeroInt()
		released := sdkmath.ZeroInt()
		toRedeem := ref(&unstaked)
		toBurn := ref(&released)
		if req.Mode.IsAll() {
			toRedeem = sum(toRedeem, fixed(before.BoosterDeposit))
			toBurn = sum(toBurn, fixed(before.PoolShares))
		}
		return []Step{
			e.unstakeStep(fixed(plan.Shares), &unstaked),
			e.boosterWithdrawStep(toRedeem, &released),
			e.removeLiquidityStep(toBurn, plan.Target, req.MinOut, params.WithdrawSlippageBps, &amounts),
		}, nil
	})
	return amounts, report, err
}

// Exchange swaps between two base assets on the pool and returns the amount received.
func (e *Engine) Exchange(ctx context.Context, req ExchangeRequest) (sdkmath.Int, *types.WorkflowReport, error) {
	received := sdkmath.ZeroInt()
	report, err := e.Execute(ctx, types.WorkflowExchange, func(ctx context.Context, before types.Position) ([]Step, error) {
		base := e.ledger.BaseAssets()
		if req.From == req.To || req.From < 0 || req.To < 0 || req.From >= len(base) || req.To >= len(base) {
			return nil, errors.Join(types.ErrInvalidPlan, fmt.Errorf("invalid exchange %d -> %d", req.From, req.To))
		}
		amount, err := planAmount(string(base[req.From].ID), req.Amount, before.BaseBalance(req.From))
		if err != nil {
			return nil, err
		}
		minOut := req.MinOut
		if minOut.IsNil() {
			expected := utils.ScaleDecimals(amount, base[req.From].Decimals, base[req.To].Decimals)
			minOut, err = policy.MinOutFromQuote(expected, e.Params().WithdrawSlippageBps)
			if err != nil {
				return nil, err
			}
		}
		return []Step{e.poolExchangeStep(req.From, req.To, amount, minOut, &received)}, nil
	})
	return received, report, err
}

// planAmount resolves an optional requested amount against what is held. It never clamps.
func planAmount(what string, requested, available sdkmath.Int) (sdkmath.Int, error) {
	if requested.IsNil() {
		return available, nil
	}
	if requested.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidPlan, fmt.Errorf("%s amount must be non-negative", what))
	}
	if requested.GT(available) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: requested %s %s, available %s", types.ErrInsufficientBalance, requested, what, available)
	}
	return requested, nil
}

// checkRewardsSettled enforces harvest-before-unstake. Claimable amounts below
// the harvest threshold do not block.
func (e *Engine) checkRewardsSettled(before types.Position, allow bool) error {
	params := e.Params()
	if allow || !params.RequireHarvestBeforeUnstake || before.Staked.IsZero() {
		return nil
	}
	claimable := types.ClaimedRewards(before.ClaimableRewards)
	for _, id := range claimable.Assets() {
		amt := claimable.Get(id)
		if amt.IsPositive() && amt.GTE(params.HarvestThreshold(id)) {
			return fmt.Errorf("%w: %s %s claimable", types.ErrRewardsPending, amt, id)
		}
	}
	return nil
}
