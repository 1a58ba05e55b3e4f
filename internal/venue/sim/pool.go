package sim

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
)

const (
	poolPrecision = 18
	bpsDenom      = 10_000
)

var ErrPoolLiquidity = errors.New("pool has insufficient liquidity")

// StablePool is a constant-sum stable pool. Deposits are valued at par after
// scaling every coin to 18 decimals; single-coin exits pay FeeBps.
type StablePool struct {
	chain    *Chain
	name     string
	coins    types.Assets
	share    types.Asset
	reserves []sdkmath.Int
	supply   sdkmath.Int
	feeBps   uint32
}

func NewStablePool(chain *Chain, name string, coins types.Assets, share types.Asset, feeBps uint32) *StablePool {
	reserves := make([]sdkmath.Int, len(coins))
	for i := range reserves {
		reserves[i] = sdkmath.ZeroInt()
	}
	if feeBps > bpsDenom {
		feeBps = bpsDenom
	}
	return &StablePool{
		chain:    chain,
		name:     name,
		coins:    coins,
		share:    share,
		reserves: reserves,
		supply:   sdkmath.ZeroInt(),
		feeBps:   feeBps,
	}
}

func (p *StablePool) Name() string { return p.name }

// SeedLiquidity adds reserves owned by other liquidity providers.
func (p *StablePool) SeedLiquidity(amounts []sdkmath.Int) {
	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	minted := p.mintFor(amounts)
	for i, amt := range amounts {
		p.reserves[i] = p.reserves[i].Add(amt)
	}
	p.supply = p.supply.Add(minted)
}

// Reserves returns a copy of the pool's coin reserves.
func (p *StablePool) Reserves() []sdkmath.Int {
	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	return append([]sdkmath.Int(nil), p.reserves...)
}

func (p *StablePool) TotalSupply() sdkmath.Int {
	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	return p.supply
}

func (p *StablePool) AddLiquidity(ctx context.Context, amounts []sdkmath.Int, minMint sdkmath.Int) (sdkmath.Int, error) {
	if err := p.chain.enter(ctx, p.name, "add_liquidity"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if len(amounts) != len(p.coins) {
		return sdkmath.ZeroInt(), fmt.Errorf("expected %d amounts, got %d", len(p.coins), len(amounts))
	}

	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()

	debits := make(map[types.AssetID]sdkmath.Int)
	for i, amt := range amounts {
		if amt.IsNegative() {
			return sdkmath.ZeroInt(), fmt.Errorf("negative amount for coin %d", i)
		}
		if amt.IsPositive() {
			debits[p.coins[i].ID] = amt
		}
	}
	if len(debits) == 0 {
		return sdkmath.ZeroInt(), nil
	}
	if err := p.chain.require(debits); err != nil {
		return sdkmath.ZeroInt(), err
	}

	minted := p.mintFor(amounts)
	if minted.LT(minMint) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: minted %s below %s", types.ErrSlippageExceeded, minted, minMint)
	}

	for i, amt := range amounts {
		if amt.IsPositive() {
			p.chain.debit(p.coins[i].ID, amt)
			p.reserves[i] = p.reserves[i].Add(amt)
		}
	}
	p.supply = p.supply.Add(minted)
	p.chain.credit(p.share.ID, minted)
	return minted, nil
}

func (p *StablePool) RemoveLiquidity(ctx context.Context, shares sdkmath.Int, minAmounts []sdkmath.Int) ([]sdkmath.Int, error) {
	if err := p.chain.enter(ctx, p.name, "remove_liquidity"); err != nil {
		return nil, err
	}
	if len(minAmounts) != len(p.coins) {
		return nil, fmt.Errorf("expected %d minimum amounts, got %d", len(p.coins), len(minAmounts))
	}

	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()

	if err := p.chain.require(map[types.AssetID]sdkmath.Int{p.share.ID: shares}); err != nil {
		return nil, err
	}
	out := make([]sdkmath.Int, len(p.coins))
	for i := range p.coins {
		out[i] = sdkmath.ZeroInt()
		if p.supply.IsPositive() {
			out[i] = p.reserves[i].Mul(shares).Quo(p.supply)
		}
		if out[i].LT(minAmounts[i]) {
			return nil, fmt.Errorf("%w: coin %d out %s below %s", types.ErrSlippageExceeded, i, out[i], minAmounts[i])
		}
	}

	p.chain.debit(p.share.ID, shares)
	p.supply = p.supply.Sub(shares)
	for i, amt := range out {
		p.reserves[i] = p.reserves[i].Sub(amt)
		p.chain.credit(p.coins[i].ID, amt)
	}
	return out, nil
}

func (p *StablePool) CalcWithdrawOneCoin(ctx context.Context, shares sdkmath.Int, index int) (sdkmath.Int, error) {
	if err := p.chain.enter(ctx, p.name, "calc_withdraw_one_coin"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	return p.quoteOneCoin(shares, index)
}

func (p *StablePool) RemoveLiquidityOneCoin(ctx context.Context, shares sdkmath.Int, index int, minOut sdkmath.Int) (sdkmath.Int, error) {
	if err := p.chain.enter(ctx, p.name, "remove_liquidity_one_coin"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()

	if err := p.chain.require(map[types.AssetID]sdkmath.Int{p.share.ID: shares}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	out, err := p.quoteOneCoin(shares, index)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if out.LT(minOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: out %s below %s", types.ErrSlippageExceeded, out, minOut)
	}

	p.chain.debit(p.share.ID, shares)
	p.supply = p.supply.Sub(shares)
	p.reserves[index] = p.reserves[index].Sub(out)
	p.chain.credit(p.coins[index].ID, out)
	return out, nil
}

func (p *StablePool) Exchange(ctx context.Context, from, to int, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	if err := p.chain.enter(ctx, p.name, "exchange"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if from == to || !p.validIndex(from) || !p.validIndex(to) {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid coin pair %d -> %d", from, to)
	}

	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()

	if err := p.chain.require(map[types.AssetID]sdkmath.Int{p.coins[from].ID: amountIn}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	value := utils.ScaleDecimals(amountIn, p.coins[from].Decimals, poolPrecision)
	value = p.applyFee(value)
	out := utils.ScaleDecimals(value, poolPrecision, p.coins[to].Decimals)
	if out.GT(p.reserves[to]) {
		return sdkmath.ZeroInt(), ErrPoolLiquidity
	}
	if out.LT(minOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: out %s below %s", types.ErrSlippageExceeded, out, minOut)
	}

	p.chain.debit(p.coins[from].ID, amountIn)
	p.reserves[from] = p.reserves[from].Add(amountIn)
	p.reserves[to] = p.reserves[to].Sub(out)
	p.chain.credit(p.coins[to].ID, out)
	return out, nil
}

// mintFor values a deposit against the current pool. Caller holds the lock.
func (p *StablePool) mintFor(amounts []sdkmath.Int) sdkmath.Int {
	deposit := sdkmath.ZeroInt()
	for i, amt := range amounts {
		deposit = deposit.Add(utils.ScaleDecimals(amt, p.coins[i].Decimals, poolPrecision))
	}
	total := p.value()
	if p.supply.IsZero() || total.IsZero() {
		return deposit
	}
	return deposit.Mul(p.supply).Quo(total)
}

// value is the pool invariant: reserves summed at 18 decimals.
func (p *StablePool) value() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for i, r := range p.reserves {
		total = total.Add(utils.ScaleDecimals(r, p.coins[i].Decimals, poolPrecision))
	}
	return total
}

func (p *StablePool) quoteOneCoin(shares sdkmath.Int, index int) (sdkmath.Int, error) {
	if !p.validIndex(index) {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid coin index %d", index)
	}
	if shares.IsZero() || p.supply.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if shares.GT(p.supply) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s shares exceed supply %s", ErrPoolLiquidity, shares, p.supply)
	}
	value := p.applyFee(p.value().Mul(shares).Quo(p.supply))
	out := utils.ScaleDecimals(value, poolPrecision, p.coins[index].Decimals)
	if out.GT(p.reserves[index]) {
		return sdkmath.ZeroInt(), ErrPoolLiquidity
	}
	return out, nil
}

func (p *StablePool) applyFee(value sdkmath.Int) sdkmath.Int {
	return value.MulRaw(int64(bpsDenom - p.feeBps)).QuoRaw(bpsDenom)
}

func (p *StablePool) validIndex(i int) bool {
	return i >= 0 && i < len(p.coins)
}
