package evm

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/yieldrouter/internal/types"
)

// TokenReader reads ERC-20 balances of the custody account. The staked tier is
// read from the reward pool, which exposes balanceOf for staked receipts.
type TokenReader struct {
	client *Client
}

func NewTokenReader(client *Client) *TokenReader {
	return &TokenReader{client: client}
}

func (r *TokenReader) BalanceOf(ctx context.Context, asset types.Asset) (sdkmath.Int, error) {
	addr, err := parseAddress(string(asset.ID), asset.Address)
	if err != nil {
		return sdkmath.Int{}, err
	}
	bal, err := r.client.balanceOf(ctx, addr)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(bal), nil
}

func (c *Client) balanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", c.from)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return unpackUint(erc20ABI, "balanceOf", out)
}

// ensureAllowance approves spender for the maximum amount when the current
// allowance is below amount. A nonzero allowance is reset to zero first, as
// some tokens (USDT) reject changing one nonzero allowance to another.
func (c *Client) ensureAllowance(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("allowance", c.from, spender)
	if err != nil {
		return fmt.Errorf("pack allowance: %w", err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return err
	}
	current, err := unpackUint(erc20ABI, "allowance", out)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrVenueQuery, err)
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}

	if current.Sign() > 0 {
		if err := c.approve(ctx, token, spender, new(big.Int)); err != nil {
			return err
		}
	}
	return c.approve(ctx, token, spender, maxUint256)
}

func (c *Client) approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	if _, err := c.send(ctx, token, data); err != nil {
		return fmt.Errorf("approve %s for %s: %w", token.Hex(), spender.Hex(), err)
	}
	c.logger.Info().Str("token", token.Hex()).Str("spender", spender.Hex()).Str("amount", amount.String()).Msg("Allowance updated")
	return nil
}

func parseAddress(what, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s has invalid address %q", types.ErrUnknownAsset, what, s)
	}
	return common.HexToAddress(s), nil
}
