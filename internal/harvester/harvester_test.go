package harvester

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/engine"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/policy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
	"github.com/elys-network/yieldrouter/internal/venue/sim"
)

const advanceTime = 2628000 * time.Second

type fixture struct {
	env       *sim.Environment
	engine    *engine.Engine
	harvester *Harvester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env, err := sim.NewEnvironment(config.DefaultVenueRegistry(), time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	set := env.Venues()
	guard := venue.NewGuard(time.Second, time.Second)
	l, err := ledger.New(env.Registry.Assets, set.Tokens, set.Booster, guard, env.Clock.Now)
	require.NoError(t, err)
	e, err := engine.NewEngine(engine.Config{
		Ledger: l,
		Venues: set,
		Guard:  guard,
		Params: config.DefaultParameters(),
		Now:    env.Clock.Now,
	})
	require.NoError(t, err)
	routes, err := venue.BuildRoutes(env.Registry, set.Swaps)
	require.NoError(t, err)
	h, err := New(Config{Engine: e, Booster: set.Booster, Routes: routes})
	require.NoError(t, err)
	return &fixture{env: env, engine: e, harvester: h}
}

func (f *fixture) stakeAndAccrue(t *testing.T) {
	t.Helper()
	require.NoError(t, f.env.FundBase("1000000"))
	_, _, err := f.engine.OneShotLend(context.Background(), policy.DepositAll())
	require.NoError(t, err)
	f.env.Clock.Advance(advanceTime)
}

func (f *fixture) position(t *testing.T) types.Position {
	t.Helper()
	pos, err := f.engine.Position(context.Background())
	require.NoError(t, err)
	return pos
}

func TestNewRequiresEveryRoute(t *testing.T) {
	f := newFixture(t)
	_, err := New(Config{Engine: f.engine, Booster: f.env.Booster, Routes: map[types.AssetID]venue.Route{}})
	assert.Error(t, err)
}

func TestHarvestClaimsExactlyWhatWasClaimable(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)

	before := f.position(t)
	require.True(t, before.HasPendingRewards())
	for id, amt := range before.ClaimableRewards {
		assert.True(t, amt.IsPositive(), "reward %s", id)
	}

	claimed, report, err := f.harvester.Harvest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, report.State)

	after := f.position(t)
	for id, pending := range before.ClaimableRewards {
		assert.Equal(t, pending, claimed.Get(id), "reward %s", id)
		assert.Equal(t, pending, after.RewardBalances[id], "reward %s", id)
		assert.True(t, after.ClaimableRewards[id].IsZero(), "reward %s", id)
	}
}

func TestClaimableKeepsAccruingAfterPartialUnstake(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	ctx := context.Background()

	_, _, err := f.harvester.Harvest(ctx)
	require.NoError(t, err)
	staked := f.position(t).Staked
	_, _, err = f.engine.Unstake(ctx, staked.QuoRaw(2), false)
	require.NoError(t, err)

	f.env.Clock.Advance(time.Hour)
	assert.True(t, f.position(t).HasPendingRewards())
}

func TestReinvestRoutesRewardsIntoStakedShares(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	ctx := context.Background()

	claimed, _, err := f.harvester.Harvest(ctx)
	require.NoError(t, err)
	stakedBefore := f.position(t).Staked

	result, err := f.harvester.Reinvest(ctx, claimed, nil)
	require.NoError(t, err)
	require.Len(t, result.Reports, 2)
	assert.Len(t, result.Reports[0].Steps, 4) // two hops per reward
	assert.True(t, result.Received.IsPositive())
	assert.True(t, result.SharesAdded.IsPositive())

	pos := f.position(t)
	assert.Equal(t, stakedBefore.Add(result.SharesAdded), pos.Staked)
	assert.True(t, pos.BaseBalance(0).IsZero())
	assert.True(t, pos.PoolShares.IsZero())
	for id, amt := range pos.RewardBalances {
		assert.True(t, amt.IsZero(), "reward %s", id)
	}
	assert.True(t, f.env.Chain.Balance("WETH").IsZero())
}

func TestReinvestFinalHopGuard(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	ctx := context.Background()

	params := f.engine.Params()
	params.RewardMinOut = map[types.AssetID]sdkmath.Int{"CRV": sdkmath.NewIntWithDecimal(1, 30)}
	require.NoError(t, f.engine.SetParams(params))

	claimed, _, err := f.harvester.Harvest(ctx)
	require.NoError(t, err)

	result, err := f.harvester.Reinvest(ctx, claimed, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)

	var wfErr *types.WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "swap:WETH->DAI", wfErr.StepName)
	assert.Equal(t, 1, wfErr.StepIndex)
	require.Len(t, result.Reports, 1)
	assert.True(t, result.SharesAdded.IsZero())

	// the intermediate hop committed and its output is held for a retry
	assert.True(t, f.env.Chain.Balance("WETH").IsPositive())
}

func TestReinvestCallerFloorOverridesStrategy(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	ctx := context.Background()

	params := f.engine.Params()
	params.RewardMinOut = map[types.AssetID]sdkmath.Int{"CRV": sdkmath.NewIntWithDecimal(1, 30)}
	require.NoError(t, f.engine.SetParams(params))

	claimed, _, err := f.harvester.Harvest(ctx)
	require.NoError(t, err)

	result, err := f.harvester.Reinvest(ctx, claimed, MinOut{"CRV": sdkmath.OneInt()})
	require.NoError(t, err)
	assert.True(t, result.SharesAdded.IsPositive())
}

func TestReinvestCallerFloorTightensGuard(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	ctx := context.Background()

	claimed, _, err := f.harvester.Harvest(ctx)
	require.NoError(t, err)

	_, err = f.harvester.Reinvest(ctx, claimed, MinOut{"CVX": sdkmath.NewIntWithDecimal(1, 30)})
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)
	assert.Equal(t, "swap:WETH->DAI", workflowStep(t, err))
}

func TestReinvestRejectsNegativeCallerFloor(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	claimed, _, err := f.harvester.Harvest(context.Background())
	require.NoError(t, err)

	_, err = f.harvester.Reinvest(context.Background(), claimed, MinOut{"CRV": sdkmath.NewInt(-1)})
	assert.ErrorIs(t, err, types.ErrInvalidPlan)
	assert.True(t, f.env.Chain.Balance("WETH").IsZero())
}

func workflowStep(t *testing.T, err error) string {
	t.Helper()
	var wfErr *types.WorkflowError
	require.ErrorAs(t, err, &wfErr)
	return wfErr.StepName
}

func TestReinvestRejectsClaimsNotHeld(t *testing.T) {
	f := newFixture(t)
	_, err := f.harvester.Reinvest(context.Background(), types.ClaimedRewards{"CRV": sdkmath.NewInt(5)}, nil)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestHarvestAndReinvestWithNothingAccrued(t *testing.T) {
	f := newFixture(t)
	result, err := f.harvester.HarvestAndReinvest(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Claimed.IsZero())
	assert.True(t, result.SharesAdded.IsZero())
	assert.Len(t, result.Reports, 2)
}

func TestLoopSkipsBelowThreshold(t *testing.T) {
	f := newFixture(t)
	loop := NewLoop(f.harvester, LoopConfig{})
	assert.Equal(t, OutcomeBelowMin, loop.RunCycle(context.Background()))
}

func TestLoopReinvests(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	cycles := 0
	loop := NewLoop(f.harvester, LoopConfig{NextCycle: func() (int, error) {
		cycles++
		return cycles, nil
	}})

	assert.Equal(t, OutcomeReinvested, loop.RunCycle(context.Background()))
	assert.Equal(t, 1, cycles)
	assert.False(t, f.position(t).HasPendingRewards())
}

func TestLoopBreakerOpensAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	f.stakeAndAccrue(t)
	loop := NewLoop(f.harvester, LoopConfig{BreakerThreshold: 3, BreakerDelay: time.Hour})

	for i := 0; i < 3; i++ {
		f.env.Chain.Fail(f.env.Booster.Name(), "get_reward", errors.New("execution reverted"))
		assert.Equal(t, OutcomeFailed, loop.RunCycle(context.Background()), "cycle %d", i)
	}
	assert.True(t, loop.BreakerOpen())

	calls := f.env.Chain.Calls(f.env.Booster.Name(), "get_reward")
	assert.Equal(t, OutcomeSkipped, loop.RunCycle(context.Background()))
	assert.Equal(t, calls, f.env.Chain.Calls(f.env.Booster.Name(), "get_reward"))

	// the engine itself keeps accepting work
	_, err := f.engine.Position(context.Background())
	assert.NoError(t, err)
}
