package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/types"
)

func simEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ROUTER_MODE", config.ModeSim)
	t.Setenv("DB_NAME", "")
	t.Setenv("VENUES_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (outcome, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())

	var o outcome
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &o), out.String())
	}
	return o, err
}

func TestParseTarget(t *testing.T) {
	assets := config.DefaultVenueRegistry().Assets

	sel, err := parseTarget("all", assets)
	require.NoError(t, err)
	assert.True(t, sel.IsAll())

	sel, err = parseTarget("1", assets)
	require.NoError(t, err)
	idx, ok := sel.Index()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	sel, err = parseTarget("usdt", assets)
	require.NoError(t, err)
	idx, _ = sel.Index()
	assert.Equal(t, 2, idx)

	_, err = parseTarget("7", assets)
	assert.Error(t, err)
	_, err = parseTarget("CRV", assets)
	assert.ErrorIs(t, err, types.ErrUnknownAsset)
}

func TestDepositMode(t *testing.T) {
	assets := config.DefaultVenueRegistry().Assets

	mode, err := depositMode(assets, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "all", mode.String())

	_, err = depositMode(assets, "1,2", "", "")
	assert.Error(t, err)

	_, err = depositMode(assets, "1,2,3", "DAI", "5")
	assert.ErrorIs(t, err, errConflictingFlags)

	_, err = depositMode(assets, "", "DAI", "")
	assert.Error(t, err)

	_, err = depositMode(assets, "1,2.0000001,3", "", "")
	assert.ErrorIs(t, err, types.ErrPrecision) // USDC has 6 decimals
}

func TestWithdrawMode(t *testing.T) {
	assets := config.DefaultVenueRegistry().Assets

	mode, err := withdrawMode(assets, 0, "", "all")
	require.NoError(t, err)
	assert.True(t, mode.IsAll())

	mode, err = withdrawMode(assets, 2, "", "DAI")
	require.NoError(t, err)
	assert.False(t, mode.IsAll())
	idx, ok := mode.Target().Index()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	_, err = withdrawMode(assets, 2, "10", "all")
	assert.ErrorIs(t, err, errConflictingFlags)
}

func TestTargetMinOut(t *testing.T) {
	assets := config.DefaultVenueRegistry().Assets

	floor, err := targetMinOut(assets, types.AllAssets(), "")
	require.NoError(t, err)
	assert.True(t, floor.IsNil())

	_, err = targetMinOut(assets, types.AllAssets(), "5")
	assert.Error(t, err)

	floor, err = targetMinOut(assets, types.SpecificAsset(1), "2.5")
	require.NoError(t, err)
	assert.Equal(t, "2500000", floor.String())
}

func TestRewardMinOut(t *testing.T) {
	assets := config.DefaultVenueRegistry().Assets

	floors, err := rewardMinOut(assets, "DAI", nil)
	require.NoError(t, err)
	assert.Nil(t, floors)

	floors, err = rewardMinOut(assets, "DAI", map[string]string{"crv": "1.5"})
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", floors["CRV"].String())

	_, err = rewardMinOut(assets, "DAI", map[string]string{"USDC": "1"})
	assert.ErrorIs(t, err, types.ErrUnknownAsset)
	_, err = rewardMinOut(assets, "DAI", map[string]string{"CVX": ""})
	assert.Error(t, err)
}

func TestSimReinvestHonorsCallerFloor(t *testing.T) {
	simEnv(t)

	o, err := execute(t, "reinvest", "--sim-prime", "--sim-advance", "730h", "--min-out", "CRV=1000000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)
	require.Len(t, o.Reports, 2) // harvest, reward swaps
	assert.Equal(t, types.StateSettled, o.Reports[0].State)
	assert.Equal(t, types.StateAborted, o.Reports[1].State)
}

func TestSimOneShotLend(t *testing.T) {
	simEnv(t)

	o, err := execute(t, "one-shot-lend")
	require.NoError(t, err)
	assert.Equal(t, config.ModeSim, o.Mode)
	require.Len(t, o.Reports, 1)
	assert.Equal(t, types.WorkflowOneShotLend, o.Reports[0].Workflow)
	assert.Equal(t, types.StateSettled, o.Reports[0].State)
	assert.NotEqual(t, "0", o.Result["staked"])
}

func TestSimReinvestAfterAccrual(t *testing.T) {
	simEnv(t)

	o, err := execute(t, "reinvest", "--sim-prime", "--sim-advance", "730h")
	require.NoError(t, err)
	require.Len(t, o.Reports, 3) // harvest, reward swaps, one-shot lend
	for _, rep := range o.Reports {
		assert.Equal(t, types.StateSettled, rep.State, rep.Workflow)
	}
	assert.NotEqual(t, "0", o.Result["shares_added"])
}

func TestSimOneShotWithdrawRefusesPendingRewards(t *testing.T) {
	simEnv(t)

	o, err := execute(t, "one-shot-withdraw", "--sim-prime", "--sim-advance", "730h")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRewardsPending)
	require.Len(t, o.Reports, 1)
	assert.Equal(t, types.StateAborted, o.Reports[0].State)
}

func TestSimStatus(t *testing.T) {
	simEnv(t)

	o, err := execute(t, "status")
	require.NoError(t, err)
	assert.Empty(t, o.Reports)
	assert.Equal(t, string(types.StateIdle), o.Result["engine_state"])
	assert.Equal(t, false, o.Result["harvest_pending"])
}

func TestLiveModeRequiresEndpoints(t *testing.T) {
	t.Setenv("ROUTER_MODE", config.ModeLive)
	t.Setenv("ROUTER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("ETH_RPC", "http://127.0.0.1:8545")
	t.Setenv("CHAIN_ID", "not-a-number")

	_, err := execute(t, "status")
	assert.Error(t, err)
}
