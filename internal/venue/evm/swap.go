package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/types"
)

const swapDeadline = 20 * time.Minute

// CurveSwap exchanges through a Curve stable or crypto pool. Both quote with
// get_dy before sending and differ only in the coin index type.
type CurveSwap struct {
	client *Client
	name   string
	addr   common.Address
	abi    abi.ABI
	crypto bool
	coins  map[types.AssetID]int
	tokens map[types.AssetID]common.Address
}

func NewCurveSwap(client *Client, cfg config.SwapConfig, assets types.Assets) (*CurveSwap, error) {
	addr, err := parseAddress(cfg.Name, cfg.Address)
	if err != nil {
		return nil, err
	}
	s := &CurveSwap{
		client: client,
		name:   cfg.Name,
		addr:   addr,
		crypto: cfg.Kind == config.SwapKindCurveCrypto,
		coins:  cfg.Coins,
		tokens: make(map[types.AssetID]common.Address, len(cfg.Coins)),
	}
	if s.crypto {
		s.abi = cryptoPoolABI
	} else if s.abi, err = stablePoolABI(len(cfg.Coins)); err != nil {
		return nil, fmt.Errorf("stable pool abi: %w", err)
	}
	for id := range cfg.Coins {
		if s.tokens[id], err = assetAddress(assets, id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *CurveSwap) Name() string { return s.name }

func (s *CurveSwap) Exchange(ctx context.Context, from, to types.AssetID, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	i, ok := s.coins[from]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s has no coin %s", types.ErrUnknownAsset, s.name, from)
	}
	j, ok := s.coins[to]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s has no coin %s", types.ErrUnknownAsset, s.name, to)
	}
	bi, bj := big.NewInt(int64(i)), big.NewInt(int64(j))
	dx, minDy := bigOrZero(amountIn), bigOrZero(minOut)

	data, err := s.abi.Pack("get_dy", bi, bj, dx)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack get_dy: %w", err)
	}
	out, err := s.client.call(ctx, s.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	dy, err := unpackUint(s.abi, "get_dy", out)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %v", types.ErrVenueQuery, err)
	}
	if dy.Cmp(minDy) < 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: %s quotes %s for %s->%s, minimum %s", types.ErrSlippageExceeded, s.name, dy, from, to, minDy)
	}

	if err := s.client.ensureAllowance(ctx, s.tokens[from], s.addr, dx); err != nil {
		return sdkmath.Int{}, err
	}
	data, err = s.abi.Pack("exchange", bi, bj, dx, minDy)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack exchange: %w", err)
	}
	receipt, err := s.client.send(ctx, s.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(s.client.transferred(receipt, s.tokens[to])), nil
}

// UniswapV2Swap exchanges through a Uniswap V2 router along the direct pair.
type UniswapV2Swap struct {
	client *Client
	name   string
	router common.Address
	assets types.Assets
	now    func() time.Time
}

func NewUniswapV2Swap(client *Client, cfg config.SwapConfig, assets types.Assets) (*UniswapV2Swap, error) {
	router, err := parseAddress(cfg.Name, cfg.Address)
	if err != nil {
		return nil, err
	}
	return &UniswapV2Swap{client: client, name: cfg.Name, router: router, assets: assets, now: time.Now}, nil
}

func (s *UniswapV2Swap) Name() string { return s.name }

func (s *UniswapV2Swap) Exchange(ctx context.Context, from, to types.AssetID, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	fromAddr, err := assetAddress(s.assets, from)
	if err != nil {
		return sdkmath.Int{}, err
	}
	toAddr, err := assetAddress(s.assets, to)
	if err != nil {
		return sdkmath.Int{}, err
	}
	path := []common.Address{fromAddr, toAddr}
	dx, minDy := bigOrZero(amountIn), bigOrZero(minOut)

	data, err := routerABI.Pack("getAmountsOut", dx, path)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	out, err := s.client.call(ctx, s.router, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	amounts, err := unpackUintSlice(routerABI, "getAmountsOut", out)
	if err != nil || len(amounts) != len(path) {
		return sdkmath.Int{}, fmt.Errorf("%w: %s getAmountsOut returned %d amounts: %v", types.ErrVenueQuery, s.name, len(amounts), err)
	}
	if quote := amounts[len(amounts)-1]; quote.Cmp(minDy) < 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: %s quotes %s for %s->%s, minimum %s", types.ErrSlippageExceeded, s.name, quote, from, to, minDy)
	}

	if err := s.client.ensureAllowance(ctx, fromAddr, s.router, dx); err != nil {
		return sdkmath.Int{}, err
	}
	deadline := big.NewInt(s.now().Add(swapDeadline).Unix())
	data, err = routerABI.Pack("swapExactTokensForTokens", dx, minDy, path, s.client.From(), deadline)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack swapExactTokensForTokens: %w", err)
	}
	receipt, err := s.client.send(ctx, s.router, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(s.client.transferred(receipt, toAddr)), nil
}

func assetAddress(assets types.Assets, id types.AssetID) (common.Address, error) {
	asset, err := assets.ByID(id)
	if err != nil {
		return common.Address{}, err
	}
	return parseAddress(string(id), asset.Address)
}
