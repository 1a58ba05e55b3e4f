/*

This file contains the plan types produced by the allocation policy and consumed by the routing engine.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// AllocationPlan maps each pool coin index to the raw amount to deposit.
// The planner guarantees Amounts[i] <= available[i] at plan time.
type AllocationPlan struct {
	Amounts []sdkmath.Int `json:"amounts"`
}

// Total returns the plain sum of the planned amounts. Amounts of different
// precisions are not comparable; use it only for zero checks and logs.
func (p AllocationPlan) Total() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, amt := range p.Amounts {
		total = total.Add(amt)
	}
	return total
}

// IsZero reports whether the plan moves nothing.
func (p AllocationPlan) IsZero() bool {
	for _, amt := range p.Amounts {
		if amt.IsPositive() {
			return false
		}
	}
	return true
}

// Amount returns the planned amount at a coin index, zero when out of range.
func (p AllocationPlan) Amount(index int) sdkmath.Int {
	if index < 0 || index >= len(p.Amounts) {
		return sdkmath.ZeroInt()
	}
	return p.Amounts[index]
}

// WithdrawalPlan is the share amount to redeem and the withdrawal shape.
type WithdrawalPlan struct {
	Shares sdkmath.Int   `json:"shares"`
	Target AssetSelector `json:"target"`
}
