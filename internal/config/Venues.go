/*

This file contains the venue registry: the fixed set of assets and external venues the router moves funds between.

The registry is read from the YAML file named by VENUES_FILE. When no file is given the built-in
Ethereum mainnet registry (Curve 3pool, Convex pid 9, Curve crypto pools and Uniswap V2) is used.

*/

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/yieldrouter/internal/types"
)

// Swap venue kinds.
const (
	SwapKindCurve       = "curve"        // stable pool, int128 coin indices
	SwapKindCurveCrypto = "curve_crypto" // crypto pool, uint256 coin indices
	SwapKindUniswapV2   = "uniswap_v2"   // router, token address path
)

// Reward source kinds describe how a reward's claimable amount is read.
const (
	RewardSourceMain    = "main"     // reward pool earned(account)
	RewardSourceExtra   = "extra"    // extra reward contract earned(account)
	RewardSourceCVXMint = "cvx_mint" // minted pro rata to the main reward on claim
)

var (
	ErrInvalidRegistry = errors.New("invalid venue registry")
)

type PoolConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	FeeBps  uint32 `yaml:"fee_bps"` // single-coin exit fee, sim venues only
}

type RewardSourceConfig struct {
	Kind    string `yaml:"kind"`
	Address string `yaml:"address,omitempty"`
}

type BoosterConfig struct {
	Name       string                               `yaml:"name"`
	Address    string                               `yaml:"address"`
	PoolID     uint64                               `yaml:"pid"`
	RewardPool string                               `yaml:"reward_pool"`
	Rewards    map[types.AssetID]RewardSourceConfig `yaml:"rewards"`
	RewardRate map[types.AssetID]string             `yaml:"sim_reward_rate,omitempty"` // raw reward per staked 1e18 per second, sim only
}

type SwapConfig struct {
	Name    string                `yaml:"name"`
	Kind    string                `yaml:"kind"`
	Address string                `yaml:"address"`
	Coins   map[types.AssetID]int `yaml:"coins,omitempty"`     // coin index per asset, curve kinds only
	Rates   map[string]string     `yaml:"sim_rates,omitempty"` // "FROM->TO": output per 1e18 input, sim only
}

type HopConfig struct {
	From  types.AssetID `yaml:"from"`
	To    types.AssetID `yaml:"to"`
	Venue string        `yaml:"venue"`
}

// VenueRegistry is the complete static configuration of assets and venues.
type VenueRegistry struct {
	Assets       types.Assets                  `yaml:"assets"`
	Pool         PoolConfig                    `yaml:"pool"`
	Booster      BoosterConfig                 `yaml:"booster"`
	Swaps        []SwapConfig                  `yaml:"swaps"`
	RewardRoutes map[types.AssetID][]HopConfig `yaml:"reward_routes"`
}

// LoadVenueRegistry reads the registry from path, or returns the built-in
// mainnet registry when path is empty.
func LoadVenueRegistry(path string) (*VenueRegistry, error) {
	if path == "" {
		log.Info().Msg("VENUES_FILE not set, using built-in mainnet venue registry")
		reg := DefaultVenueRegistry()
		return reg, reg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue registry %s: %w", path, err)
	}
	reg, err := ParseVenueRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("venue registry %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("assets", len(reg.Assets)).Int("swaps", len(reg.Swaps)).Msg("Loaded venue registry")
	return reg, nil
}

// ParseVenueRegistry decodes and validates a YAML registry document.
func ParseVenueRegistry(data []byte) (*VenueRegistry, error) {
	var reg VenueRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, errors.Join(ErrInvalidRegistry, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Swap returns the swap venue with the given name.
func (r *VenueRegistry) Swap(name string) (SwapConfig, bool) {
	for _, s := range r.Swaps {
		if s.Name == name {
			return s, true
		}
	}
	return SwapConfig{}, false
}

// Validate checks asset integrity, venue references and that every reward route
// starts at its reward and ends in a base asset.
func (r *VenueRegistry) Validate() error {
	if err := r.Assets.Validate(); err != nil {
		return errors.Join(ErrInvalidRegistry, err)
	}
	if r.Pool.Name == "" {
		return errors.Join(ErrInvalidRegistry, errors.New("pool name is required"))
	}
	if r.Booster.Name == "" {
		return errors.Join(ErrInvalidRegistry, errors.New("booster name is required"))
	}

	names := map[string]bool{r.Pool.Name: true, r.Booster.Name: true}
	for _, s := range r.Swaps {
		if s.Name == "" || names[s.Name] {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("swap venue name %q is empty or duplicated", s.Name))
		}
		names[s.Name] = true
		switch s.Kind {
		case SwapKindCurve, SwapKindCurveCrypto:
			if len(s.Coins) < 2 {
				return errors.Join(ErrInvalidRegistry, fmt.Errorf("swap %s needs at least two coin indices", s.Name))
			}
		case SwapKindUniswapV2:
		default:
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("swap %s has unknown kind %q", s.Name, s.Kind))
		}
		for id := range s.Coins {
			if _, err := r.Assets.ByID(id); err != nil {
				return errors.Join(ErrInvalidRegistry, fmt.Errorf("swap %s: %w", s.Name, err))
			}
		}
	}

	rewards := r.Assets.Rewards()
	for _, reward := range rewards {
		src, ok := r.Booster.Rewards[reward]
		if !ok {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("reward %s has no booster reward source", reward))
		}
		switch src.Kind {
		case RewardSourceMain, RewardSourceExtra, RewardSourceCVXMint:
		default:
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("reward %s has unknown source kind %q", reward, src.Kind))
		}
		if err := r.validateRoute(reward); err != nil {
			return err
		}
	}
	return nil
}

func (r *VenueRegistry) validateRoute(reward types.AssetID) error {
	hops := r.RewardRoutes[reward]
	if len(hops) == 0 {
		return errors.Join(ErrInvalidRegistry, fmt.Errorf("reward %s has no route", reward))
	}
	at := reward
	for i, hop := range hops {
		if hop.From != at {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("route %s hop %d starts at %s, expected %s", reward, i, hop.From, at))
		}
		swap, ok := r.Swap(hop.Venue)
		if !ok {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("route %s hop %d uses unknown venue %s", reward, i, hop.Venue))
		}
		if swap.Kind != SwapKindUniswapV2 {
			if _, ok := swap.Coins[hop.From]; !ok {
				return errors.Join(ErrInvalidRegistry, fmt.Errorf("venue %s has no coin %s", swap.Name, hop.From))
			}
			if _, ok := swap.Coins[hop.To]; !ok {
				return errors.Join(ErrInvalidRegistry, fmt.Errorf("venue %s has no coin %s", swap.Name, hop.To))
			}
		}
		if _, err := r.Assets.ByID(hop.To); err != nil {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("route %s hop %d: %w", reward, i, err))
		}
		at = hop.To
	}
	last, _ := r.Assets.ByID(at)
	if !last.IsBase() {
		return errors.Join(ErrInvalidRegistry, fmt.Errorf("route %s ends at %s, which is not a base asset", reward, at))
	}
	return nil
}

// ValidateAddresses checks that every asset and venue used on chain has a contract address.
func (r *VenueRegistry) ValidateAddresses() error {
	for _, a := range r.Assets {
		if a.Address == "" {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("asset %s has no address", a.ID))
		}
	}
	if r.Pool.Address == "" || r.Booster.Address == "" || r.Booster.RewardPool == "" {
		return errors.Join(ErrInvalidRegistry, errors.New("pool, booster and reward pool addresses are required"))
	}
	for id, src := range r.Booster.Rewards {
		if src.Kind == RewardSourceExtra && src.Address == "" {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("extra reward %s has no address", id))
		}
	}
	for _, s := range r.Swaps {
		if s.Address == "" {
			return errors.Join(ErrInvalidRegistry, fmt.Errorf("swap %s has no address", s.Name))
		}
	}
	return nil
}

// DefaultVenueRegistry returns the Ethereum mainnet deployment: the Curve 3pool
// (DAI/USDC/USDT), Convex pool 9 and its cvx3CRV reward pool, and the CRV/CVX
// exits through the Curve crypto pools into WETH and Uniswap V2 into DAI.
func DefaultVenueRegistry() *VenueRegistry {
	return &VenueRegistry{
		Assets: types.Assets{
			{ID: "DAI", Kind: types.AssetKindBase, Index: 0, Decimals: 18, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
			{ID: "USDC", Kind: types.AssetKindBase, Index: 1, Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
			{ID: "USDT", Kind: types.AssetKindBase, Index: 2, Decimals: 6, Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
			{ID: "3CRV", Kind: types.AssetKindPoolShare, Decimals: 18, Address: "0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490"},
			{ID: "cvx3CRV", Kind: types.AssetKindBoosterDeposit, Decimals: 18, Address: "0x30D9410ED1D5DA1F6C8391af5338C93ab8d4035C"},
			{ID: "stkcvx3CRV", Kind: types.AssetKindStaked, Decimals: 18, Address: "0x689440f2Ff927E1f24c72F1087E1FAF471eCe1c8"},
			{ID: "CRV", Kind: types.AssetKindReward, Decimals: 18, Address: "0xD533a949740bb3306d119CC777fa900bA034cd52"},
			{ID: "CVX", Kind: types.AssetKindReward, Decimals: 18, Address: "0x4e3FBD56CD56c3e72c1403e103b45Db9da5B9D2B"},
			{ID: "WETH", Kind: types.AssetKindIntermediate, Decimals: 18, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
		},
		Pool: PoolConfig{
			Name:    "curve-3pool",
			Address: "0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7",
			FeeBps:  1,
		},
		Booster: BoosterConfig{
			Name:       "convex-booster",
			Address:    "0xF403C135812408BFbE8713b5A23a04b3D48AAE31",
			PoolID:     9,
			RewardPool: "0x689440f2Ff927E1f24c72F1087E1FAF471eCe1c8",
			Rewards: map[types.AssetID]RewardSourceConfig{
				"CRV": {Kind: RewardSourceMain},
				"CVX": {Kind: RewardSourceCVXMint},
			},
			RewardRate: map[types.AssetID]string{
				"CRV": "10000000000", // 1e10 per staked 1e18 per second
				"CVX": "5000000000",
			},
		},
		Swaps: []SwapConfig{
			{
				Name:    "curve-crveth",
				Kind:    SwapKindCurveCrypto,
				Address: "0x8301AE4fc9c624d1D396cbDAa1ed877821D7C511",
				Coins:   map[types.AssetID]int{"WETH": 0, "CRV": 1},
				Rates:   map[string]string{"CRV->WETH": "250000000000000"},
			},
			{
				Name:    "curve-cvxeth",
				Kind:    SwapKindCurveCrypto,
				Address: "0xB576491F1E6e5E62f1d8F26062Ee822B40B0E0d4",
				Coins:   map[types.AssetID]int{"WETH": 0, "CVX": 1},
				Rates:   map[string]string{"CVX->WETH": "1000000000000000"},
			},
			{
				Name:    "uniswap-v2",
				Kind:    SwapKindUniswapV2,
				Address: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
				Rates:   map[string]string{"WETH->DAI": "2500000000000000000000"},
			},
		},
		RewardRoutes: map[types.AssetID][]HopConfig{
			"CRV": {
				{From: "CRV", To: "WETH", Venue: "curve-crveth"},
				{From: "WETH", To: "DAI", Venue: "uniswap-v2"},
			},
			"CVX": {
				{From: "CVX", To: "WETH", Venue: "curve-cvxeth"},
				{From: "WETH", To: "DAI", Venue: "uniswap-v2"},
			},
		},
	}
}
