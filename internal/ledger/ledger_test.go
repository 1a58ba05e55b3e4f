package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
	"github.com/elys-network/yieldrouter/internal/venue/sim"
)

func newLedger(t *testing.T) (*Ledger, *sim.Environment) {
	t.Helper()
	env, err := sim.NewEnvironment(config.DefaultVenueRegistry(), time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	l, err := New(env.Registry.Assets, env.Chain, env.Booster, venue.NewGuard(time.Second, time.Second), env.Clock.Now)
	require.NoError(t, err)
	return l, env
}

func TestBalanceOfEmptyIsZero(t *testing.T) {
	l, _ := newLedger(t)
	bal, err := l.BalanceOf(context.Background(), "USDT")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	_, err = l.BalanceOf(context.Background(), "WBTC")
	assert.ErrorIs(t, err, types.ErrUnknownAsset)
}

func TestBalanceOfSurfacesVenueErrors(t *testing.T) {
	l, env := newLedger(t)
	env.Chain.Fail("token", "balance_of", errors.New("node unavailable"))

	_, err := l.BalanceOf(context.Background(), "DAI")
	assert.ErrorIs(t, err, types.ErrVenueQuery)
}

func TestSnapshotReadsEveryTier(t *testing.T) {
	l, env := newLedger(t)
	ctx := context.Background()
	env.Chain.Mint("USDC", sdkmath.NewInt(1_000_000_000))
	env.Chain.Mint("3CRV", sdkmath.NewInt(30))
	env.Chain.Mint("cvx3CRV", sdkmath.NewInt(20))
	env.Chain.Mint("stkcvx3CRV", sdkmath.NewInt(1_000_000_000_000_000_000))
	env.Chain.Mint("CRV", sdkmath.NewInt(7))

	env.Clock.Advance(time.Hour)
	pos, err := l.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(1_000_000_000), pos.BaseBalance(1))
	assert.True(t, pos.BaseBalance(0).IsZero())
	assert.Equal(t, sdkmath.NewInt(30), pos.PoolShares)
	assert.Equal(t, sdkmath.NewInt(20), pos.BoosterDeposit)
	assert.Equal(t, sdkmath.NewInt(7), pos.RewardBalances["CRV"])
	assert.Equal(t, env.Clock.Now(), pos.ObservedAt)
	_, hasCVX := pos.ClaimableRewards["CVX"]
	assert.True(t, hasCVX)
}

func TestSnapshotFailsOnAnyRead(t *testing.T) {
	l, env := newLedger(t)
	env.Chain.Fail(env.Booster.Name(), "earned", errors.New("reverted"))

	_, err := l.Snapshot(context.Background())
	assert.ErrorIs(t, err, types.ErrVenueQuery)
}

func TestNormalizeDenormalize(t *testing.T) {
	l, _ := newLedger(t)

	human, err := l.Normalize("USDC", sdkmath.NewInt(1_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.LegacyNewDec(1000), human)

	raw, err := l.Denormalize("DAI", sdkmath.LegacyNewDec(2))
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", raw.String())
}
