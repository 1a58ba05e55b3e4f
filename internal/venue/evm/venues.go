package evm

import (
	"fmt"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
)

// NewVenues binds every venue in the registry to its on-chain contract.
func NewVenues(client *Client, reg *config.VenueRegistry) (venue.Set, error) {
	if err := reg.ValidateAddresses(); err != nil {
		return venue.Set{}, err
	}
	share, err := reg.Assets.Single(types.AssetKindPoolShare)
	if err != nil {
		return venue.Set{}, err
	}
	pool, err := NewCurvePool(client, reg.Pool.Name, reg.Pool.Address, reg.Assets.Base(), share)
	if err != nil {
		return venue.Set{}, fmt.Errorf("pool %s: %w", reg.Pool.Name, err)
	}
	booster, err := NewConvexBooster(client, reg.Booster, reg.Assets)
	if err != nil {
		return venue.Set{}, fmt.Errorf("booster %s: %w", reg.Booster.Name, err)
	}

	swaps := make(map[string]venue.Swap, len(reg.Swaps))
	for _, sc := range reg.Swaps {
		var sw venue.Swap
		switch sc.Kind {
		case config.SwapKindCurve, config.SwapKindCurveCrypto:
			sw, err = NewCurveSwap(client, sc, reg.Assets)
		case config.SwapKindUniswapV2:
			sw, err = NewUniswapV2Swap(client, sc, reg.Assets)
		default:
			err = fmt.Errorf("unknown kind %q", sc.Kind)
		}
		if err != nil {
			return venue.Set{}, fmt.Errorf("swap %s: %w", sc.Name, err)
		}
		swaps[sc.Name] = sw
	}

	client.logger.Info().
		Str("pool", pool.Name()).
		Str("booster", booster.Name()).
		Int("swaps", len(swaps)).
		Msg("On-chain venues bound")

	return venue.Set{
		Tokens:  NewTokenReader(client),
		Pool:    pool,
		Booster: booster,
		Swaps:   swaps,
	}, nil
}
