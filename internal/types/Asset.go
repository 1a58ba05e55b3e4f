/*

This is a custom type for assets which contains all the state needed to move balances between venues.

*/

package types

import (
	"fmt"
	"sort"
)

// AssetID is the registry identifier of an asset, e.g. "USDC" or "3CRV".
type AssetID string

// AssetKind classifies where in the routing chain an asset sits.
type AssetKind string

const (
	AssetKindBase           AssetKind = "base"            // stablecoin held directly (DAI, USDC, USDT)
	AssetKindPoolShare      AssetKind = "pool_share"      // pool LP token (3CRV)
	AssetKindBoosterDeposit AssetKind = "booster_deposit" // unstaked booster receipt (cvx3CRV)
	AssetKindStaked         AssetKind = "staked"          // staked booster receipt, earns rewards
	AssetKindReward         AssetKind = "reward"          // reward token (CRV, CVX)
	AssetKindIntermediate   AssetKind = "intermediate"    // swap hop only (WETH)
)

// MaxDecimals bounds the precision of any configured asset.
const MaxDecimals = 36

type Asset struct {
	ID       AssetID   `json:"id" yaml:"id"`
	Kind     AssetKind `json:"kind" yaml:"kind"`
	Index    int       `json:"index" yaml:"index"`       // pool coin index, base assets only
	Decimals int       `json:"decimals" yaml:"decimals"` // e.g., 6 for USDC, 18 for DAI
	Address  string    `json:"address" yaml:"address"`   // venue-specific contract reference
}

// IsBase reports whether the asset is one of the pool's underlying coins.
func (a Asset) IsBase() bool {
	return a.Kind == AssetKindBase
}

// Assets is an immutable view over the configured asset set.
type Assets []Asset

// ByID returns the asset with the given identifier.
func (as Assets) ByID(id AssetID) (Asset, error) {
	for _, a := range as {
		if a.ID == id {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
}

// OfKind returns the assets of one kind in registry order.
func (as Assets) OfKind(kind AssetKind) Assets {
	out := make(Assets, 0, len(as))
	for _, a := range as {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Single returns the only asset of the given kind. Pool share, booster deposit
// and staked tiers must each be configured exactly once.
func (as Assets) Single(kind AssetKind) (Asset, error) {
	matches := as.OfKind(kind)
	if len(matches) != 1 {
		return Asset{}, fmt.Errorf("%w: expected exactly one %s asset, found %d", ErrUnknownAsset, kind, len(matches))
	}
	return matches[0], nil
}

// Base returns the base assets ordered by pool coin index.
func (as Assets) Base() Assets {
	base := as.OfKind(AssetKindBase)
	sort.Slice(base, func(i, j int) bool { return base[i].Index < base[j].Index })
	return base
}

// BaseByIndex returns the base asset at the given pool coin index.
func (as Assets) BaseByIndex(index int) (Asset, error) {
	for _, a := range as {
		if a.Kind == AssetKindBase && a.Index == index {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: no base asset at index %d", ErrUnknownAsset, index)
}

// Rewards returns the reward asset identifiers in registry order.
func (as Assets) Rewards() []AssetID {
	rewards := as.OfKind(AssetKindReward)
	ids := make([]AssetID, 0, len(rewards))
	for _, a := range rewards {
		ids = append(ids, a.ID)
	}
	return ids
}

// Validate checks identifier uniqueness, precision bounds and that base indices are 0..N-1.
func (as Assets) Validate() error {
	seen := make(map[AssetID]bool, len(as))
	indices := make(map[int]bool)
	for i, a := range as {
		if a.ID == "" {
			return fmt.Errorf("asset %d has empty id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate asset id %s", a.ID)
		}
		seen[a.ID] = true
		if a.Decimals < 0 || a.Decimals > MaxDecimals {
			return fmt.Errorf("asset %s has invalid decimals: %d", a.ID, a.Decimals)
		}
		switch a.Kind {
		case AssetKindBase:
			if indices[a.Index] {
				return fmt.Errorf("duplicate base index %d (asset %s)", a.Index, a.ID)
			}
			indices[a.Index] = true
		case AssetKindPoolShare, AssetKindBoosterDeposit, AssetKindStaked, AssetKindReward, AssetKindIntermediate:
		default:
			return fmt.Errorf("asset %s has unknown kind %q", a.ID, a.Kind)
		}
	}
	if len(indices) == 0 {
		return fmt.Errorf("no base assets configured")
	}
	for i := 0; i < len(indices); i++ {
		if !indices[i] {
			return fmt.Errorf("base asset indices must be contiguous from 0, missing %d", i)
		}
	}
	for _, kind := range []AssetKind{AssetKindPoolShare, AssetKindBoosterDeposit, AssetKindStaked} {
		if _, err := as.Single(kind); err != nil {
			return err
		}
	}
	return nil
}
