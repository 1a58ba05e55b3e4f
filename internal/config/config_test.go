package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigSimDefaults(t *testing.T) {
	t.Setenv("ROUTER_MODE", "sim")
	for _, key := range []string{"VENUE_CALL_TIMEOUT", "VENUE_QUERY_TIMEOUT", "HARVEST_INTERVAL", "WEB_PORT", "VENUES_FILE"} {
		t.Setenv(key, "")
	}

	require.NoError(t, LoadConfig())
	assert.Equal(t, ModeSim, Mode)
	assert.Equal(t, DefaultVenueCallTimeout, VenueCallTimeout)
	assert.Equal(t, DefaultVenueQueryTimeout, VenueQueryTimeout)
	assert.Equal(t, DefaultHarvestInterval, HarvestInterval)
	assert.Equal(t, DefaultWebPort, WebPort)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("ROUTER_MODE", "paper")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigLiveRequiresEndpoints(t *testing.T) {
	t.Setenv("ROUTER_MODE", "live")
	t.Setenv("ROUTER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe512961708279f3c2c5b6f1b6a1f1a1")
	t.Setenv("ETH_RPC", "http://localhost:8545")
	t.Setenv("CHAIN_ID", "not-a-number")
	assert.Error(t, LoadConfig())

	t.Setenv("CHAIN_ID", "1")
	t.Setenv("VENUE_CALL_TIMEOUT", "90s")
	t.Setenv("RPC_RATE_LIMIT", "4")
	require.NoError(t, LoadConfig())
	assert.Equal(t, uint64(1), ChainID)
	assert.Equal(t, 90*time.Second, VenueCallTimeout)
	assert.Equal(t, 4.0, RPCRateLimit)
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	t.Setenv("ROUTER_MODE", "sim")
	t.Setenv("VENUE_QUERY_TIMEOUT", "-5s")
	assert.Error(t, LoadConfig())
}

func TestDefaultVenueRegistryIsValid(t *testing.T) {
	reg := DefaultVenueRegistry()
	require.NoError(t, reg.Validate())
	require.NoError(t, reg.ValidateAddresses())

	base := reg.Assets.Base()
	require.Len(t, base, 3)
	assert.Equal(t, 6, base[1].Decimals)
	assert.Equal(t, uint64(9), reg.Booster.PoolID)

	swap, ok := reg.Swap("uniswap-v2")
	require.True(t, ok)
	assert.Equal(t, SwapKindUniswapV2, swap.Kind)
}

const registryYAML = `
assets:
  - {id: DAI, kind: base, index: 0, decimals: 18}
  - {id: USDC, kind: base, index: 1, decimals: 6}
  - {id: LP, kind: pool_share, decimals: 18}
  - {id: DEP, kind: booster_deposit, decimals: 18}
  - {id: STK, kind: staked, decimals: 18}
  - {id: RWD, kind: reward, decimals: 18}
pool:
  name: pool
  fee_bps: 4
booster:
  name: booster
  pid: 1
  rewards:
    RWD: {kind: main}
swaps:
  - name: dex
    kind: curve
    coins: {RWD: 0, USDC: 1}
reward_routes:
  RWD:
    - {from: RWD, to: USDC, venue: dex}
`

func TestParseVenueRegistry(t *testing.T) {
	reg, err := ParseVenueRegistry([]byte(registryYAML))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), reg.Pool.FeeBps)
	assert.Len(t, reg.RewardRoutes["RWD"], 1)

	// Addresses are only required for live venues.
	assert.ErrorIs(t, reg.ValidateAddresses(), ErrInvalidRegistry)
}

func TestVenueRegistryRouteValidation(t *testing.T) {
	bad := registryYAML + `
  EXTRA: []
`
	_, err := ParseVenueRegistry([]byte(bad))
	require.NoError(t, err, "routes for unknown rewards are ignored")

	reg, err := ParseVenueRegistry([]byte(registryYAML))
	require.NoError(t, err)
	reg.RewardRoutes["RWD"] = []HopConfig{{From: "RWD", To: "RWD", Venue: "dex"}}
	assert.ErrorIs(t, reg.Validate(), ErrInvalidRegistry)

	reg.RewardRoutes["RWD"] = []HopConfig{{From: "USDC", To: "DAI", Venue: "dex"}}
	assert.ErrorIs(t, reg.Validate(), ErrInvalidRegistry)

	reg.RewardRoutes["RWD"] = nil
	assert.ErrorIs(t, reg.Validate(), ErrInvalidRegistry)
}

func TestLoadVenueRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o600))

	reg, err := LoadVenueRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "pool", reg.Pool.Name)

	_, err = LoadVenueRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultParametersIsACopy(t *testing.T) {
	p := DefaultParameters()
	require.NoError(t, p.Validate(DefaultVenueRegistry().Assets))
	delete(p.MinHarvestRaw, "CRV")
	_, ok := DefaultStrategyParameters.MinHarvestRaw["CRV"]
	assert.True(t, ok)
}
