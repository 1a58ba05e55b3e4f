package engine

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/policy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
)

// Step names as recorded in receipts and metrics.
const (
	StepAddLiquidity     = "add_liquidity"
	StepRemoveLiquidity  = "remove_liquidity"
	StepRemoveOneCoin    = "remove_liquidity_one_coin"
	StepPoolExchange     = "exchange"
	StepBoosterDeposit   = "booster_deposit"
	StepDepositAndStake  = "deposit_and_stake"
	StepStake            = "stake"
	StepUnstake          = "unstake"
	StepBoosterWithdraw  = "booster_withdraw"
	StepClaimRewards     = "get_reward"
	StepSwapRewardPrefix = "swap"
)

// amountFn yields a step's input when the step runs, so a step can consume the
// output of the one before it.
type amountFn func() sdkmath.Int

func fixed(v sdkmath.Int) amountFn {
	return func() sdkmath.Int { return v }
}

func sum(fns ...amountFn) amountFn {
	return func() sdkmath.Int {
		total := sdkmath.ZeroInt()
		for _, fn := range fns {
			total = total.Add(fn())
		}
		return total
	}
}

func ref(v *sdkmath.Int) amountFn {
	return func() sdkmath.Int { return *v }
}

func checkReturned(what string, v sdkmath.Int) error {
	if v.IsNil() || v.IsNegative() {
		return fmt.Errorf("%w: venue returned invalid %s %v", types.ErrVenueCall, what, v)
	}
	return nil
}

func (e *Engine) addLiquidityStep(plan types.AllocationPlan, minted *sdkmath.Int) Step {
	pool := e.venues.Pool
	return Step{Name: StepAddLiquidity, Venue: pool.Name(), Run: func(ctx context.Context) (Outputs, error) {
		if plan.IsZero() {
			return nil, ErrStepSkipped
		}
		out, err := pool.AddLiquidity(ctx, plan.Amounts, sdkmath.ZeroInt())
		if err != nil {
			return nil, err
		}
		if err := checkReturned("shares minted", out); err != nil {
			return nil, err
		}
		*minted = out
		return Outputs{"shares_minted": out}, nil
	}}
}

func (e *Engine) boosterDepositStep(in amountFn, stake bool, receipts *sdkmath.Int) Step {
	booster := e.venues.Booster
	name := StepBoosterDeposit
	if stake {
		name = StepDepositAndStake
	}
	return Step{Name: name, Venue: booster.Name(), Run: func(ctx context.Context) (Outputs, error) {
		shares := in()
		if !shares.IsPositive() {
			return nil, ErrStepSkipped
		}
		out, err := booster.Deposit(ctx, shares, stake)
		if err != nil {
			return nil, err
		}
		if err := checkReturned("receipts", out); err != nil {
			return nil, err
		}
		*receipts = out
		return Outputs{"shares_in": shares, "receipts": out}, nil
	}}
}

func (e *Engine) stakeStep(in amountFn, staked *sdkmath.Int) Step {
	booster := e.venues.Booster
	return Step{Name: StepStake, Venue: booster.Name(), Run: func(ctx context.Context) (Outputs, error) {
		amount := in()
		if !amount.IsPositive() {
			return nil, ErrStepSkipped
		}
		if err := booster.Stake(ctx, amount); err != nil {
			return nil, err
		}
		*staked = amount
		return Outputs{"staked": amount}, nil
	}}
}

func (e *Engine) unstakeStep(in amountFn, unstaked *sdkmath.Int) Step {
	booster := e.venues.Booster
	return Step{Name: StepUnstake, Venue: booster.Name(), Run: func(ctx context.Context) (Outputs, error) {
		amount := in()
		if !amount.IsPositive() {
			return nil, ErrStepSkipped
		}
		if err := booster.Unstake(ctx, amount); err != nil {
			return nil, err
		}
		*unstaked = amount
		return Outputs{"unstaked": amount}, nil
	}}
}

func (e *Engine) boosterWithdrawStep(in amountFn, released *sdkmath.Int) Step {
	booster := e.venues.Booster
	return Step{Name: StepBoosterWithdraw, Venue: booster.Name(), Run: func(ctx context.Context) (Outputs, error) {
		amount := in()
		if !amount.IsPositive() {
			return nil, ErrStepSkipped
		}
		out, err := booster.Withdraw(ctx, amount)
		if err != nil {
			return nil, err
		}
		if err := checkReturned("shares released", out); err != nil {
			return nil, err
		}
		*released = out
		return Outputs{"receipts_in": amount, "shares_released": out}, nil
	}}
}

// removeLiquidityStep burns shares for either every coin or one coin. For a
// single-coin exit without an explicit floor the minimum is derived from the
// venue quote at execution time.
func (e *Engine) removeLiquidityStep(in amountFn, target types.AssetSelector, minOut sdkmath.Int, slippageBps uint32, amounts *[]sdkmath.Int) Step {
	pool := e.venues.Pool
	base := e.ledger.BaseAssets()

	if target.IsAll() {
		return Step{Name: StepRemoveLiquidity, Venue: pool.Name(), Run: func(ctx context.Context) (Outputs, error) {
			shares := in()
			if !shares.IsPositive() {
				return nil, ErrStepSkipped
			}
			mins := make([]sdkmath.Int, len(base))
			for i := range mins {
				mins[i] = sdkmath.ZeroInt()
			}
			out, err := pool.RemoveLiquidity(ctx, shares, mins)
			if err != nil {
				return nil, err
			}
			if len(out) != len(base) {
				return nil, fmt.Errorf("%w: pool returned %d amounts for %d coins", types.ErrVenueCall, len(out), len(base))
			}
			outputs := Outputs{"shares_burned": shares}
			for i, amt := range out {
				if err := checkReturned("amount", amt); err != nil {
					return nil, err
				}
				outputs["amount:"+string(base[i].ID)] = amt
			}
			*amounts = out
			return outputs, nil
		}}
	}

	index, _ := target.Index()
	return Step{Name: StepRemoveOneCoin, Venue: pool.Name(), Run: func(ctx context.Context) (Outputs, error) {
		shares := in()
		if !shares.IsPositive() {
			return nil, ErrStepSkipped
		}
		floor := minOut
		var quote sdkmath.Int
		if floor.IsNil() {
			q, err := venue.Query(ctx, e.guard, pool.Name(), "calc_withdraw_one_coin", func(ctx context.Context) (sdkmath.Int, error) {
				return pool.CalcWithdrawOneCoin(ctx, shares, index)
			})
			if err != nil {
				return nil, err
			}
			quote = q
			floor, err = policy.MinOutFromQuote(q, slippageBps)
			if err != nil {
				return nil, err
			}
		}
		out, err := pool.RemoveLiquidityOneCoin(ctx, shares, index, floor)
		if err != nil {
			return nil, err
		}
		if err := checkReturned("amount", out); err != nil {
			return nil, err
		}
		if out.LT(floor) {
			return nil, fmt.Errorf("%w: received %s, minimum %s", types.ErrSlippageExceeded, out, floor)
		}
		result := make([]sdkmath.Int, len(base))
		for i := range result {
			result[i] = sdkmath.ZeroInt()
		}
		result[index] = out
		*amounts = result

		outputs := Outputs{"shares_burned": shares, "min_out": floor, "amount:" + string(base[index].ID): out}
		if !quote.IsNil() {
			outputs["quote"] = quote
		}
		return outputs, nil
	}}
}

func (e *Engine) poolExchangeStep(from, to int, amount, minOut sdkmath.Int, received *sdkmath.Int) Step {
	pool := e.venues.Pool
	return Step{Name: StepPoolExchange, Venue: pool.Name(), Run: func(ctx context.Context) (Outputs, error) {
		if !amount.IsPositive() {
			return nil, ErrStepSkipped
		}
		out, err := pool.Exchange(ctx, from, to, amount, minOut)
		if err != nil {
			return nil, err
		}
		if err := checkReturned("exchange output", out); err != nil {
			return nil, err
		}
		if out.LT(minOut) {
			return nil, fmt.Errorf("%w: received %s, minimum %s", types.ErrSlippageExceeded, out, minOut)
		}
		*received = out
		return Outputs{"amount_in": amount, "min_out": minOut, "amount_out": out}, nil
	}}
}
