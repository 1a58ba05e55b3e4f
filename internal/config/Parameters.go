/*

This file contains the default strategy parameters for the router.

They apply when no active parameter set is stored in the database.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
)

// DefaultStrategyConfigName is the name under which parameter versions are stored.
const DefaultStrategyConfigName = "default"

// DefaultStrategyParameters routes all rewards into DAI (pool index 0).
var DefaultStrategyParameters = types.StrategyParameters{
	ReinvestAsset: "DAI",

	// Floors on the DAI received per reward exit. Zero leaves only the
	// per-hop venue checks in place.
	RewardMinOut: map[types.AssetID]sdkmath.Int{
		"CRV": sdkmath.ZeroInt(),
		"CVX": sdkmath.ZeroInt(),
	},

	// 1 CRV / 0.1 CVX. Smaller claims are left to accrue.
	MinHarvestRaw: map[types.AssetID]sdkmath.Int{
		"CRV": sdkmath.NewInt(1_000_000_000_000_000_000),
		"CVX": sdkmath.NewInt(100_000_000_000_000_000),
	},

	WithdrawSlippageBps: 30, // 0.3% below the venue quote for single-asset exits

	RequireHarvestBeforeUnstake: true,
}

// DefaultParameters returns a deep copy of DefaultStrategyParameters.
func DefaultParameters() types.StrategyParameters {
	p := DefaultStrategyParameters
	p.RewardMinOut = copyAmounts(DefaultStrategyParameters.RewardMinOut)
	p.MinHarvestRaw = copyAmounts(DefaultStrategyParameters.MinHarvestRaw)
	return p
}

func copyAmounts(in map[types.AssetID]sdkmath.Int) map[types.AssetID]sdkmath.Int {
	out := make(map[types.AssetID]sdkmath.Int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
