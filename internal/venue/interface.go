package venue

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
)

// TokenReader reads the engine's raw balance of one asset.
type TokenReader interface {
	BalanceOf(ctx context.Context, asset types.Asset) (sdkmath.Int, error)
}

// Pool defines the interface of the stable-asset liquidity pool.
// Amount slices are indexed by pool coin index. Every state-changing call either
// fully succeeds or fully fails.
type Pool interface {
	Name() string

	// AddLiquidity deposits the given amounts in one call and returns the pool shares minted.
	// The mint is AMM-implied, never a fixed rate.
	AddLiquidity(ctx context.Context, amounts []sdkmath.Int, minMint sdkmath.Int) (sdkmath.Int, error)

	// RemoveLiquidity burns shares for a proportional amount of every coin.
	RemoveLiquidity(ctx context.Context, shares sdkmath.Int, minAmounts []sdkmath.Int) ([]sdkmath.Int, error)

	// RemoveLiquidityOneCoin burns shares for a single coin at the venue's AMM-implied amount.
	RemoveLiquidityOneCoin(ctx context.Context, shares sdkmath.Int, index int, minOut sdkmath.Int) (sdkmath.Int, error)

	// CalcWithdrawOneCoin quotes RemoveLiquidityOneCoin without changing state.
	CalcWithdrawOneCoin(ctx context.Context, shares sdkmath.Int, index int) (sdkmath.Int, error)

	// Exchange swaps one pool coin for another.
	Exchange(ctx context.Context, from, to int, amountIn, minOut sdkmath.Int) (sdkmath.Int, error)
}

// Booster defines the interface of the staking venue that pays rewards on staked pool shares.
type Booster interface {
	Name() string

	// Deposit moves pool shares into the booster and returns the receipt tokens issued.
	// With stake set the receipts are staked in the same call.
	Deposit(ctx context.Context, shares sdkmath.Int, stake bool) (sdkmath.Int, error)

	// Withdraw redeems unstaked receipt tokens and returns the pool shares released.
	Withdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)

	Stake(ctx context.Context, amount sdkmath.Int) error
	Unstake(ctx context.Context, amount sdkmath.Int) error

	// Earned returns the claimable raw amount of one reward asset.
	Earned(ctx context.Context, reward types.AssetID) (sdkmath.Int, error)

	// GetReward claims every reward asset and returns the amounts realized by this call.
	GetReward(ctx context.Context) (types.ClaimedRewards, error)

	RewardAssets() []types.AssetID
}

// Swap defines the interface of an exchange venue.
type Swap interface {
	Name() string

	// Exchange fails with types.ErrSlippageExceeded when the output would be below minOut.
	Exchange(ctx context.Context, from, to types.AssetID, amountIn, minOut sdkmath.Int) (sdkmath.Int, error)
}

// Set is the complete venue binding of one engine instance.
type Set struct {
	Tokens  TokenReader
	Pool    Pool
	Booster Booster
	Swaps   map[string]Swap
}
