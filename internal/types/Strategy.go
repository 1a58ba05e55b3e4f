/*

This file contains the tunable strategy parameters for reward harvesting, reinvestment and exits.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// MaxSlippageBps is the upper bound for a slippage tolerance in basis points.
const MaxSlippageBps = 10_000

// StrategyParameters holds the owner's fixed strategy. Amounts are raw integers.
type StrategyParameters struct {
	ReinvestAsset               AssetID                 `json:"reinvest_asset"`                 // Base asset that harvested rewards are routed into.
	RewardMinOut                map[AssetID]sdkmath.Int `json:"reward_min_out"`                 // Minimum final-hop output per reward asset.
	MinHarvestRaw               map[AssetID]sdkmath.Int `json:"min_harvest_raw"`                // Rewards below this are left for a later cycle.
	WithdrawSlippageBps         uint32                  `json:"withdraw_slippage_bps"`          // Tolerance below the venue quote for single-asset exits.
	RequireHarvestBeforeUnstake bool                    `json:"require_harvest_before_unstake"` // Refuse unstakes while rewards are claimable.
}

// MinOutFor returns the configured minimum output for a reward, zero when unset.
func (p StrategyParameters) MinOutFor(id AssetID) sdkmath.Int {
	if amt, ok := p.RewardMinOut[id]; ok && !amt.IsNil() {
		return amt
	}
	return sdkmath.ZeroInt()
}

// HarvestThreshold returns the minimum claim size for a reward, zero when unset.
func (p StrategyParameters) HarvestThreshold(id AssetID) sdkmath.Int {
	if amt, ok := p.MinHarvestRaw[id]; ok && !amt.IsNil() {
		return amt
	}
	return sdkmath.ZeroInt()
}

// Validate checks the parameters against the configured asset set.
func (p StrategyParameters) Validate(assets Assets) error {
	reinvest, err := assets.ByID(p.ReinvestAsset)
	if err != nil {
		return fmt.Errorf("reinvest asset: %w", err)
	}
	if !reinvest.IsBase() {
		return errors.Join(ErrInvalidPlan, fmt.Errorf("reinvest asset %s is not a base asset", p.ReinvestAsset))
	}
	if p.WithdrawSlippageBps > MaxSlippageBps {
		return errors.Join(ErrInvalidPlan, fmt.Errorf("withdraw slippage %d bps exceeds %d", p.WithdrawSlippageBps, MaxSlippageBps))
	}
	for id, amt := range p.RewardMinOut {
		if _, err := assets.ByID(id); err != nil {
			return fmt.Errorf("reward min out: %w", err)
		}
		if amt.IsNil() || amt.IsNegative() {
			return errors.Join(ErrInvalidPlan, fmt.Errorf("reward min out for %s must be non-negative", id))
		}
	}
	for id, amt := range p.MinHarvestRaw {
		if _, err := assets.ByID(id); err != nil {
			return fmt.Errorf("min harvest: %w", err)
		}
		if amt.IsNil() || amt.IsNegative() {
			return errors.Join(ErrInvalidPlan, fmt.Errorf("min harvest for %s must be non-negative", id))
		}
	}
	return nil
}
