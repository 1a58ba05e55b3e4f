/*

This file contains the types for positions which contains the engine's holdings at every tier of the routing chain.

*/

package types

import (
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Position is a point-in-time view of everything the engine custodies.
// All amounts are raw integers in each asset's smallest unit.
type Position struct {
	BaseBalances     []sdkmath.Int           `json:"base_balances"`     // indexed by pool coin index
	PoolShares       sdkmath.Int             `json:"pool_shares"`       // free LP tokens
	BoosterDeposit   sdkmath.Int             `json:"booster_deposit"`   // unstaked booster receipts
	Staked           sdkmath.Int             `json:"staked"`            // staked booster receipts
	RewardBalances   map[AssetID]sdkmath.Int `json:"reward_balances"`   // free reward tokens
	ClaimableRewards map[AssetID]sdkmath.Int `json:"claimable_rewards"` // accrued, not yet claimed
	ObservedAt       time.Time               `json:"observed_at"`
}

// NewPosition returns a position with every balance set to zero.
func NewPosition(baseCount int) Position {
	base := make([]sdkmath.Int, baseCount)
	for i := range base {
		base[i] = sdkmath.ZeroInt()
	}
	return Position{
		BaseBalances:     base,
		PoolShares:       sdkmath.ZeroInt(),
		BoosterDeposit:   sdkmath.ZeroInt(),
		Staked:           sdkmath.ZeroInt(),
		RewardBalances:   make(map[AssetID]sdkmath.Int),
		ClaimableRewards: make(map[AssetID]sdkmath.Int),
	}
}

// TotalShares is the pool-share claim summed over the three share tiers.
func (p Position) TotalShares() sdkmath.Int {
	return p.PoolShares.Add(p.BoosterDeposit).Add(p.Staked)
}

// BaseBalance returns the balance at a pool coin index, zero when out of range.
func (p Position) BaseBalance(index int) sdkmath.Int {
	if index < 0 || index >= len(p.BaseBalances) {
		return sdkmath.ZeroInt()
	}
	return p.BaseBalances[index]
}

// HasPendingRewards reports whether any reward asset has a positive claimable balance.
func (p Position) HasPendingRewards() bool {
	for _, amt := range p.ClaimableRewards {
		if amt.IsPositive() {
			return true
		}
	}
	return false
}

// ClaimedRewards maps a reward asset to the raw amount realized by one claim.
type ClaimedRewards map[AssetID]sdkmath.Int

// Assets returns the reward identifiers in a stable order.
func (c ClaimedRewards) Assets() []AssetID {
	ids := make([]AssetID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get returns the claimed amount, zero when absent.
func (c ClaimedRewards) Get(id AssetID) sdkmath.Int {
	if amt, ok := c[id]; ok && !amt.IsNil() {
		return amt
	}
	return sdkmath.ZeroInt()
}

// IsZero reports whether nothing was claimed.
func (c ClaimedRewards) IsZero() bool {
	for _, amt := range c {
		if !amt.IsNil() && amt.IsPositive() {
			return false
		}
	}
	return true
}
