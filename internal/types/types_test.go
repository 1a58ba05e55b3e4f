package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAssets() Assets {
	return Assets{
		{ID: "DAI", Kind: AssetKindBase, Index: 0, Decimals: 18},
		{ID: "USDC", Kind: AssetKindBase, Index: 1, Decimals: 6},
		{ID: "USDT", Kind: AssetKindBase, Index: 2, Decimals: 6},
		{ID: "3CRV", Kind: AssetKindPoolShare, Decimals: 18},
		{ID: "cvx3CRV", Kind: AssetKindBoosterDeposit, Decimals: 18},
		{ID: "stkcvx3CRV", Kind: AssetKindStaked, Decimals: 18},
		{ID: "CRV", Kind: AssetKindReward, Decimals: 18},
		{ID: "CVX", Kind: AssetKindReward, Decimals: 18},
	}
}

func TestAssetsValidate(t *testing.T) {
	require.NoError(t, testAssets().Validate())

	tests := []struct {
		name   string
		mutate func(Assets) Assets
	}{
		{"duplicate id", func(as Assets) Assets { as[1].ID = "DAI"; return as }},
		{"gap in base indices", func(as Assets) Assets { as[2].Index = 3; return as }},
		{"duplicate base index", func(as Assets) Assets { as[2].Index = 1; return as }},
		{"decimals too large", func(as Assets) Assets { as[0].Decimals = MaxDecimals + 1; return as }},
		{"unknown kind", func(as Assets) Assets { as[6].Kind = "bogus"; return as }},
		{"missing staked tier", func(as Assets) Assets { return append(as[:5], as[6:]...) }},
		{"empty id", func(as Assets) Assets { as[3].ID = ""; return as }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.mutate(testAssets()).Validate())
		})
	}
}

func TestAssetsLookups(t *testing.T) {
	as := testAssets()

	usdc, err := as.ByID("USDC")
	require.NoError(t, err)
	assert.Equal(t, 6, usdc.Decimals)

	_, err = as.ByID("WBTC")
	assert.ErrorIs(t, err, ErrUnknownAsset)

	base := Assets{as[2], as[0], as[1]}.Base()
	require.Len(t, base, 3)
	assert.Equal(t, AssetID("DAI"), base[0].ID)
	assert.Equal(t, AssetID("USDT"), base[2].ID)

	usdt, err := as.BaseByIndex(2)
	require.NoError(t, err)
	assert.Equal(t, AssetID("USDT"), usdt.ID)

	_, err = as.BaseByIndex(7)
	assert.ErrorIs(t, err, ErrUnknownAsset)

	assert.Equal(t, []AssetID{"CRV", "CVX"}, as.Rewards())
}

func TestAssetSelector(t *testing.T) {
	var zero AssetSelector
	assert.False(t, zero.IsValid())

	all := AllAssets()
	assert.True(t, all.IsAll())
	assert.Equal(t, AllAssetsSentinel, all.Sentinel())
	_, ok := all.Index()
	assert.False(t, ok)

	one := SpecificAsset(1)
	idx, ok := one.Index()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "1", one.String())

	sel, err := SelectorFromSentinel(-1)
	require.NoError(t, err)
	assert.True(t, sel.IsAll())

	_, err = SelectorFromSentinel(-2)
	assert.Error(t, err)
}

func TestAssetSelectorJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Target AssetSelector `json:"target"`
	}{AllAssets()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":-1}`, string(data))

	var decoded AssetSelector
	require.NoError(t, json.Unmarshal([]byte("2"), &decoded))
	idx, ok := decoded.Index()
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	require.NoError(t, json.Unmarshal([]byte("null"), &decoded))
	assert.False(t, decoded.IsValid())
}

func TestPositionHelpers(t *testing.T) {
	pos := NewPosition(3)
	pos.PoolShares = sdkmath.NewInt(5)
	pos.BoosterDeposit = sdkmath.NewInt(7)
	pos.Staked = sdkmath.NewInt(11)

	assert.Equal(t, sdkmath.NewInt(23), pos.TotalShares())
	assert.True(t, pos.BaseBalance(9).IsZero())
	assert.False(t, pos.HasPendingRewards())

	pos.ClaimableRewards["CRV"] = sdkmath.NewInt(1)
	assert.True(t, pos.HasPendingRewards())
}

func TestAllocationPlan(t *testing.T) {
	plan := AllocationPlan{Amounts: []sdkmath.Int{sdkmath.ZeroInt(), sdkmath.NewInt(3), sdkmath.ZeroInt()}}
	assert.False(t, plan.IsZero())
	assert.Equal(t, sdkmath.NewInt(3), plan.Total())
	assert.True(t, plan.Amount(5).IsZero())

	empty := AllocationPlan{Amounts: []sdkmath.Int{sdkmath.ZeroInt()}}
	assert.True(t, empty.IsZero())
}

func TestWorkflowErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("exchange: %w", ErrSlippageExceeded)
	err := error(&WorkflowError{
		Workflow:   WorkflowOneShotWithdraw,
		WorkflowID: "wf-1",
		StepIndex:  1,
		StepName:   "withdraw",
		Err:        cause,
	})

	assert.ErrorIs(t, err, ErrSlippageExceeded)
	var wfErr *WorkflowError
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, 1, wfErr.StepIndex)
	assert.Contains(t, err.Error(), "step 1 (withdraw)")

	planning := &WorkflowError{Workflow: WorkflowLend, WorkflowID: "wf-2", StepIndex: -1, Err: ErrInsufficientBalance}
	assert.Contains(t, planning.Error(), "while planning")
}

func TestStrategyParametersValidate(t *testing.T) {
	as := testAssets()
	params := StrategyParameters{
		ReinvestAsset:       "DAI",
		RewardMinOut:        map[AssetID]sdkmath.Int{"CRV": sdkmath.NewInt(1)},
		WithdrawSlippageBps: 50,
	}
	require.NoError(t, params.Validate(as))
	assert.Equal(t, sdkmath.NewInt(1), params.MinOutFor("CRV"))
	assert.True(t, params.MinOutFor("CVX").IsZero())

	params.ReinvestAsset = "CRV"
	assert.ErrorIs(t, params.Validate(as), ErrInvalidPlan)

	params.ReinvestAsset = "DAI"
	params.WithdrawSlippageBps = MaxSlippageBps + 1
	assert.ErrorIs(t, params.Validate(as), ErrInvalidPlan)
}
