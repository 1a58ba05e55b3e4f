package policy

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/types"
)

type depositKind uint8

const (
	depositUnset depositKind = iota
	depositAll
	depositPartial
	depositSingle
)

// DepositMode selects how a deposit is split across the base assets.
type DepositMode struct {
	kind    depositKind
	amounts []sdkmath.Int
	index   int
	amount  sdkmath.Int
}

// DepositAll plans the full available balance of every base asset.
func DepositAll() DepositMode {
	return DepositMode{kind: depositAll}
}

// DepositPartial plans explicit per-asset amounts, indexed by pool coin index.
func DepositPartial(amounts ...sdkmath.Int) DepositMode {
	return DepositMode{kind: depositPartial, amounts: amounts}
}

// DepositSingle plans one asset at an explicit amount and zero for all others.
func DepositSingle(index int, amount sdkmath.Int) DepositMode {
	return DepositMode{kind: depositSingle, index: index, amount: amount}
}

func (m DepositMode) String() string {
	switch m.kind {
	case depositAll:
		return "all"
	case depositPartial:
		return "partial"
	case depositSingle:
		return fmt.Sprintf("single(%d)", m.index)
	default:
		return "unset"
	}
}

type withdrawKind uint8

const (
	withdrawUnset withdrawKind = iota
	withdrawAll
	withdrawFraction
	withdrawExact
)

// WithdrawMode selects how many shares to redeem and the shape of the exit.
type WithdrawMode struct {
	kind    withdrawKind
	divisor uint64
	shares  sdkmath.Int
	target  types.AssetSelector
}

// WithdrawAll redeems the full share balance.
func WithdrawAll(target types.AssetSelector) WithdrawMode {
	return WithdrawMode{kind: withdrawAll, target: target}
}

// WithdrawFraction redeems balance / n, floored. The remainder stays invested.
func WithdrawFraction(n uint64, target types.AssetSelector) WithdrawMode {
	return WithdrawMode{kind: withdrawFraction, divisor: n, target: target}
}

// WithdrawExact redeems an explicit share amount.
func WithdrawExact(shares sdkmath.Int, target types.AssetSelector) WithdrawMode {
	return WithdrawMode{kind: withdrawExact, shares: shares, target: target}
}

// Target returns the withdrawal shape.
func (m WithdrawMode) Target() types.AssetSelector { return m.target }

// IsAll reports whether the mode redeems the whole balance.
func (m WithdrawMode) IsAll() bool { return m.kind == withdrawAll }

func (m WithdrawMode) String() string {
	switch m.kind {
	case withdrawAll:
		return "all/" + m.target.String()
	case withdrawFraction:
		return fmt.Sprintf("1/%d/%s", m.divisor, m.target)
	case withdrawExact:
		return "exact/" + m.target.String()
	default:
		return "unset"
	}
}

// Policy turns caller intents into allocation plans. It never clamps: a request
// above what is available is rejected before any venue call.
type Policy struct {
	coins  int
	logger zerolog.Logger
}

// New returns a policy for a pool with the given number of coins.
func New(coins int) *Policy {
	return &Policy{coins: coins, logger: logger.GetForComponent("allocation_policy")}
}

// PlanDeposit returns per-asset deposit amounts. The result satisfies
// plan.Amounts[i] <= available[i] for every i.
func (p *Policy) PlanDeposit(available []sdkmath.Int, mode DepositMode) (types.AllocationPlan, error) {
	if len(available) != p.coins {
		return types.AllocationPlan{}, errors.Join(types.ErrInvalidPlan, fmt.Errorf("expected %d available balances, got %d", p.coins, len(available)))
	}
	for i, a := range available {
		if a.IsNil() || a.IsNegative() {
			return types.AllocationPlan{}, errors.Join(types.ErrInvalidPlan, fmt.Errorf("invalid available balance at index %d", i))
		}
	}

	amounts := make([]sdkmath.Int, p.coins)
	for i := range amounts {
		amounts[i] = sdkmath.ZeroInt()
	}

	switch mode.kind {
	case depositAll:
		copy(amounts, available)
	case depositPartial:
		if len(mode.amounts) != p.coins {
			return types.AllocationPlan{}, errors.Join(types.ErrInvalidPlan, fmt.Errorf("expected %d amounts, got %d", p.coins, len(mode.amounts)))
		}
		for i, amt := range mode.amounts {
			if err := checkAmount(i, amt, available[i]); err != nil {
				return types.AllocationPlan{}, err
			}
			amounts[i] = amt
		}
	case depositSingle:
		if mode.index < 0 || mode.index >= p.coins {
			return types.AllocationPlan{}, errors.Join(types.ErrInvalidPlan, fmt.Errorf("asset index %d out of range", mode.index))
		}
		if err := checkAmount(mode.index, mode.amount, available[mode.index]); err != nil {
			return types.AllocationPlan{}, err
		}
		amounts[mode.index] = mode.amount
	default:
		return types.AllocationPlan{}, errors.Join(types.ErrInvalidPlan, errors.New("deposit mode not set"))
	}

	plan := types.AllocationPlan{Amounts: amounts}
	p.logger.Debug().Str("mode", mode.String()).Str("total_raw", plan.Total().String()).Msg("Deposit planned")
	return plan, nil
}

// PlanWithdrawal returns the shares to redeem and the exit shape.
func (p *Policy) PlanWithdrawal(currentShares sdkmath.Int, mode WithdrawMode) (types.WithdrawalPlan, error) {
	if currentShares.IsNil() || currentShares.IsNegative() {
		return types.WithdrawalPlan{}, errors.Join(types.ErrInvalidPlan, errors.New("invalid share balance"))
	}
	if err := p.validateTarget(mode.target); err != nil {
		return types.WithdrawalPlan{}, err
	}

	var shares sdkmath.Int
	switch mode.kind {
	case withdrawAll:
		shares = currentShares
	case withdrawFraction:
		if mode.divisor == 0 {
			return types.WithdrawalPlan{}, errors.Join(types.ErrInvalidPlan, errors.New("fraction divisor must be positive"))
		}
		shares = currentShares.Quo(sdkmath.NewIntFromUint64(mode.divisor))
	case withdrawExact:
		if mode.shares.IsNil() || mode.shares.IsNegative() {
			return types.WithdrawalPlan{}, errors.Join(types.ErrInvalidPlan, errors.New("share amount must be non-negative"))
		}
		if mode.shares.GT(currentShares) {
			return types.WithdrawalPlan{}, fmt.Errorf("%w: requested %s shares, holding %s", types.ErrInsufficientBalance, mode.shares, currentShares)
		}
		shares = mode.shares
	default:
		return types.WithdrawalPlan{}, errors.Join(types.ErrInvalidPlan, errors.New("withdraw mode not set"))
	}

	p.logger.Debug().Str("mode", mode.String()).Str("shares", shares.String()).Msg("Withdrawal planned")
	return types.WithdrawalPlan{Shares: shares, Target: mode.target}, nil
}

func (p *Policy) validateTarget(target types.AssetSelector) error {
	if !target.IsValid() {
		return errors.Join(types.ErrInvalidPlan, errors.New("withdrawal target not set"))
	}
	if idx, ok := target.Index(); ok && (idx < 0 || idx >= p.coins) {
		return errors.Join(types.ErrInvalidPlan, fmt.Errorf("target asset index %d out of range", idx))
	}
	return nil
}

func checkAmount(index int, amount, available sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return errors.Join(types.ErrInvalidPlan, fmt.Errorf("amount at index %d must be non-negative", index))
	}
	if amount.GT(available) {
		return fmt.Errorf("%w: index %d requested %s, available %s", types.ErrInsufficientBalance, index, amount, available)
	}
	return nil
}
