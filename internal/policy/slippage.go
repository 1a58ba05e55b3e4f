package policy

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
)

// MinOutFromQuote derives a minimum output from a venue quote and a tolerance
// in basis points: quote * (10000 - bps) / 10000, floored.
func MinOutFromQuote(quote sdkmath.Int, bps uint32) (sdkmath.Int, error) {
	if quote.IsNil() || quote.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidPlan, errors.New("quote must be non-negative"))
	}
	if bps > types.MaxSlippageBps {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidPlan, fmt.Errorf("slippage %d bps exceeds %d", bps, types.MaxSlippageBps))
	}
	return quote.MulRaw(int64(types.MaxSlippageBps - bps)).QuoRaw(types.MaxSlippageBps), nil
}
