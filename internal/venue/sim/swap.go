package sim

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
)

type pair struct {
	from, to types.AssetID
}

// FixedRateSwap exchanges at configured rates, expressed as raw output per 1e18 raw input.
type FixedRateSwap struct {
	chain *Chain
	name  string
	rates map[pair]sdkmath.Int
}

func NewFixedRateSwap(chain *Chain, name string) *FixedRateSwap {
	return &FixedRateSwap{chain: chain, name: name, rates: make(map[pair]sdkmath.Int)}
}

func (s *FixedRateSwap) Name() string { return s.name }

// SetRate sets the exchange rate for one direction of a pair.
func (s *FixedRateSwap) SetRate(from, to types.AssetID, outPer1e18 sdkmath.Int) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	s.rates[pair{from, to}] = outPer1e18
}

// Quote returns the output for amountIn without executing.
func (s *FixedRateSwap) Quote(from, to types.AssetID, amountIn sdkmath.Int) (sdkmath.Int, error) {
	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()
	return s.quote(from, to, amountIn)
}

func (s *FixedRateSwap) Exchange(ctx context.Context, from, to types.AssetID, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	if err := s.chain.enter(ctx, s.name, "exchange"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}

	s.chain.mu.Lock()
	defer s.chain.mu.Unlock()

	if err := s.chain.require(map[types.AssetID]sdkmath.Int{from: amountIn}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out, err := s.quote(from, to, amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if out.LT(minOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s -> %s out %s below %s", types.ErrSlippageExceeded, from, to, out, minOut)
	}

	s.chain.debit(from, amountIn)
	s.chain.credit(to, out)
	return out, nil
}

func (s *FixedRateSwap) quote(from, to types.AssetID, amountIn sdkmath.Int) (sdkmath.Int, error) {
	rate, ok := s.rates[pair{from, to}]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%s does not support %s -> %s", s.name, from, to)
	}
	return amountIn.Mul(rate).Quo(utils.Pow10(poolPrecision)), nil
}
