package sim

import (
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/elys-network/yieldrouter/internal/venue"
)

// ExternalLiquidity is the per-coin pool depth owned by other providers, in whole units.
const ExternalLiquidity = "100000000"

// Environment is a complete in-memory deployment built from a venue registry.
type Environment struct {
	Registry *config.VenueRegistry
	Clock    *Clock
	Chain    *Chain
	Pool     *StablePool
	Booster  *Booster
	Swaps    map[string]*FixedRateSwap
}

// NewEnvironment builds simulated venues for every venue in the registry and
// seeds the pool with external liquidity.
func NewEnvironment(reg *config.VenueRegistry, start time.Time) (*Environment, error) {
	simLogger := logger.GetForComponent("sim_environment")

	clock := NewClock(start)
	chain := NewChain(clock)

	share, err := reg.Assets.Single(types.AssetKindPoolShare)
	if err != nil {
		return nil, err
	}
	deposit, err := reg.Assets.Single(types.AssetKindBoosterDeposit)
	if err != nil {
		return nil, err
	}
	staked, err := reg.Assets.Single(types.AssetKindStaked)
	if err != nil {
		return nil, err
	}
	base := reg.Assets.Base()

	pool := NewStablePool(chain, reg.Pool.Name, base, share, reg.Pool.FeeBps)
	seed := make([]sdkmath.Int, len(base))
	for i, a := range base {
		seed[i], err = utils.ParseHumanAmount(ExternalLiquidity, a.Decimals)
		if err != nil {
			return nil, err
		}
	}
	pool.SeedLiquidity(seed)

	rates := make(map[types.AssetID]sdkmath.Int)
	for _, id := range reg.Assets.Rewards() {
		rates[id] = sdkmath.ZeroInt()
		if s, ok := reg.Booster.RewardRate[id]; ok {
			rate, ok := sdkmath.NewIntFromString(s)
			if !ok {
				return nil, fmt.Errorf("invalid sim reward rate %q for %s", s, id)
			}
			rates[id] = rate
		}
	}
	booster := NewBooster(chain, reg.Booster.Name, share, deposit, staked, rates)

	swaps := make(map[string]*FixedRateSwap, len(reg.Swaps))
	for _, sc := range reg.Swaps {
		sw := NewFixedRateSwap(chain, sc.Name)
		for key, s := range sc.Rates {
			from, to, ok := strings.Cut(key, "->")
			if !ok {
				return nil, fmt.Errorf("swap %s: invalid rate key %q", sc.Name, key)
			}
			rate, ok := sdkmath.NewIntFromString(s)
			if !ok {
				return nil, fmt.Errorf("swap %s: invalid rate %q", sc.Name, s)
			}
			sw.SetRate(types.AssetID(from), types.AssetID(to), rate)
		}
		swaps[sc.Name] = sw
	}

	simLogger.Info().
		Str("pool", pool.Name()).
		Str("booster", booster.Name()).
		Int("swaps", len(swaps)).
		Msg("Simulated venues ready")

	return &Environment{
		Registry: reg,
		Clock:    clock,
		Chain:    chain,
		Pool:     pool,
		Booster:  booster,
		Swaps:    swaps,
	}, nil
}

// Venues returns the venue binding for an engine.
func (e *Environment) Venues() venue.Set {
	swaps := make(map[string]venue.Swap, len(e.Swaps))
	for name, sw := range e.Swaps {
		swaps[name] = sw
	}
	return venue.Set{
		Tokens:  e.Chain,
		Pool:    e.Pool,
		Booster: e.Booster,
		Swaps:   swaps,
	}
}

// Fund mints a human-scale amount of an asset into the custody account.
func (e *Environment) Fund(id types.AssetID, human string) error {
	asset, err := e.Registry.Assets.ByID(id)
	if err != nil {
		return err
	}
	raw, err := utils.ParseHumanAmount(human, asset.Decimals)
	if err != nil {
		return err
	}
	e.Chain.Mint(id, raw)
	return nil
}

// FundBase mints the same human-scale amount of every base asset.
func (e *Environment) FundBase(human string) error {
	for _, a := range e.Registry.Assets.Base() {
		if err := e.Fund(a.ID, human); err != nil {
			return err
		}
	}
	return nil
}
