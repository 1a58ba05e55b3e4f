package evm

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/yieldrouter/internal/types"
)

// CurvePool binds a Curve stable pool with a fixed coin count.
// Output amounts are taken from the Transfer logs of each receipt.
type CurvePool struct {
	client *Client
	name   string
	addr   common.Address
	coins  []common.Address // by pool coin index
	share  common.Address
	abi    abi.ABI
}

func NewCurvePool(client *Client, name, address string, coins types.Assets, share types.Asset) (*CurvePool, error) {
	addr, err := parseAddress(name, address)
	if err != nil {
		return nil, err
	}
	shareAddr, err := parseAddress(string(share.ID), share.Address)
	if err != nil {
		return nil, err
	}
	parsed, err := stablePoolABI(len(coins))
	if err != nil {
		return nil, fmt.Errorf("stable pool abi: %w", err)
	}
	p := &CurvePool{client: client, name: name, addr: addr, share: shareAddr, abi: parsed}
	for i, c := range coins {
		if c.Index != i {
			return nil, fmt.Errorf("pool %s: coin %s has index %d, expected %d", name, c.ID, c.Index, i)
		}
		coinAddr, err := parseAddress(string(c.ID), c.Address)
		if err != nil {
			return nil, err
		}
		p.coins = append(p.coins, coinAddr)
	}
	return p, nil
}

func (p *CurvePool) Name() string { return p.name }

func (p *CurvePool) AddLiquidity(ctx context.Context, amounts []sdkmath.Int, minMint sdkmath.Int) (sdkmath.Int, error) {
	raw, err := p.amounts(amounts)
	if err != nil {
		return sdkmath.Int{}, err
	}
	for i, amt := range raw {
		if amt.Sign() == 0 {
			continue
		}
		if err := p.client.ensureAllowance(ctx, p.coins[i], p.addr, amt); err != nil {
			return sdkmath.Int{}, err
		}
	}
	data, err := p.abi.Pack("add_liquidity", fixedArray(raw), bigOrZero(minMint))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack add_liquidity: %w", err)
	}
	receipt, err := p.client.send(ctx, p.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(p.client.transferred(receipt, p.share)), nil
}

func (p *CurvePool) RemoveLiquidity(ctx context.Context, shares sdkmath.Int, minAmounts []sdkmath.Int) ([]sdkmath.Int, error) {
	mins, err := p.amounts(minAmounts)
	if err != nil {
		return nil, err
	}
	data, err := p.abi.Pack("remove_liquidity", bigOrZero(shares), fixedArray(mins))
	if err != nil {
		return nil, fmt.Errorf("pack remove_liquidity: %w", err)
	}
	receipt, err := p.client.send(ctx, p.addr, data)
	if err != nil {
		return nil, err
	}
	out := make([]sdkmath.Int, len(p.coins))
	for i, coin := range p.coins {
		out[i] = sdkmath.NewIntFromBigInt(p.client.transferred(receipt, coin))
	}
	return out, nil
}

func (p *CurvePool) CalcWithdrawOneCoin(ctx context.Context, shares sdkmath.Int, index int) (sdkmath.Int, error) {
	if err := p.checkIndex(index); err != nil {
		return sdkmath.Int{}, err
	}
	data, err := p.abi.Pack("calc_withdraw_one_coin", bigOrZero(shares), big.NewInt(int64(index)))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack calc_withdraw_one_coin: %w", err)
	}
	out, err := p.client.call(ctx, p.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	quote, err := unpackUint(p.abi, "calc_withdraw_one_coin", out)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %v", types.ErrVenueQuery, err)
	}
	return sdkmath.NewIntFromBigInt(quote), nil
}

func (p *CurvePool) RemoveLiquidityOneCoin(ctx context.Context, shares sdkmath.Int, index int, minOut sdkmath.Int) (sdkmath.Int, error) {
	quote, err := p.CalcWithdrawOneCoin(ctx, shares, index)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !minOut.IsNil() && quote.LT(minOut) {
		return sdkmath.Int{}, fmt.Errorf("%w: %s quotes %s for coin %d, minimum %s", types.ErrSlippageExceeded, p.name, quote, index, minOut)
	}
	data, err := p.abi.Pack("remove_liquidity_one_coin", bigOrZero(shares), big.NewInt(int64(index)), bigOrZero(minOut))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack remove_liquidity_one_coin: %w", err)
	}
	receipt, err := p.client.send(ctx, p.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(p.client.transferred(receipt, p.coins[index])), nil
}

func (p *CurvePool) Exchange(ctx context.Context, from, to int, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	if err := p.checkIndex(from); err != nil {
		return sdkmath.Int{}, err
	}
	if err := p.checkIndex(to); err != nil {
		return sdkmath.Int{}, err
	}
	i, j := big.NewInt(int64(from)), big.NewInt(int64(to))
	dx := bigOrZero(amountIn)

	data, err := p.abi.Pack("get_dy", i, j, dx)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack get_dy: %w", err)
	}
	out, err := p.client.call(ctx, p.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	dy, err := unpackUint(p.abi, "get_dy", out)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %v", types.ErrVenueQuery, err)
	}
	if dy.Cmp(bigOrZero(minOut)) < 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: %s quotes %s for %d->%d, minimum %s", types.ErrSlippageExceeded, p.name, dy, from, to, minOut)
	}

	if err := p.client.ensureAllowance(ctx, p.coins[from], p.addr, dx); err != nil {
		return sdkmath.Int{}, err
	}
	data, err = p.abi.Pack("exchange", i, j, dx, bigOrZero(minOut))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack exchange: %w", err)
	}
	receipt, err := p.client.send(ctx, p.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(p.client.transferred(receipt, p.coins[to])), nil
}

func (p *CurvePool) amounts(vals []sdkmath.Int) ([]*big.Int, error) {
	if len(vals) != len(p.coins) {
		return nil, fmt.Errorf("%w: %s expects %d amounts, got %d", types.ErrInvalidPlan, p.name, len(p.coins), len(vals))
	}
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = bigOrZero(v)
	}
	return out, nil
}

func (p *CurvePool) checkIndex(i int) error {
	if i < 0 || i >= len(p.coins) {
		return fmt.Errorf("%w: %s has no coin %d", types.ErrUnknownAsset, p.name, i)
	}
	return nil
}

// bigOrZero converts an amount for packing; an unset amount packs as zero.
func bigOrZero(v sdkmath.Int) *big.Int {
	if v.IsNil() {
		return new(big.Int)
	}
	return v.BigInt()
}
