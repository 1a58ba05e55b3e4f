package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/harvester"
	"github.com/elys-network/yieldrouter/internal/policy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
)

var errConflictingFlags = errors.New("conflicting flags")

// parseTarget accepts "all", a pool coin index or a base asset id.
func parseTarget(s string, assets types.Assets) (types.AssetSelector, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return types.AllAssets(), nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		if _, err := assets.BaseByIndex(i); err != nil {
			return types.AssetSelector{}, err
		}
		return types.SpecificAsset(i), nil
	}
	a, err := assets.ByID(types.AssetID(strings.ToUpper(s)))
	if err != nil {
		return types.AssetSelector{}, err
	}
	if !a.IsBase() {
		return types.AssetSelector{}, fmt.Errorf("%w: %s is not a base asset", types.ErrUnknownAsset, a.ID)
	}
	return types.SpecificAsset(a.Index), nil
}

// parseAmount parses a human amount of asset. An empty string yields a nil Int.
func parseAmount(s string, asset types.Asset) (sdkmath.Int, error) {
	if strings.TrimSpace(s) == "" {
		return sdkmath.Int{}, nil
	}
	amt, err := utils.ParseHumanAmount(s, asset.Decimals)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("invalid %s amount: %w", asset.ID, err)
	}
	return amt, nil
}

func shareAmount(s string, assets types.Assets) (sdkmath.Int, error) {
	share, err := assets.Single(types.AssetKindPoolShare)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return parseAmount(s, share)
}

// depositMode builds the deposit mode from --amounts (one per coin) or --asset with --amount.
// Neither selects every free base balance.
func depositMode(assets types.Assets, amounts, asset, amount string) (policy.DepositMode, error) {
	switch {
	case amounts != "" && asset != "":
		return policy.DepositMode{}, fmt.Errorf("%w: --amounts and --asset", errConflictingFlags)
	case amounts != "":
		base := assets.Base()
		parts := strings.Split(amounts, ",")
		if len(parts) != len(base) {
			return policy.DepositMode{}, fmt.Errorf("--amounts needs %d values, got %d", len(base), len(parts))
		}
		vals := make([]sdkmath.Int, len(parts))
		for i, p := range parts {
			v, err := parseAmount(p, base[i])
			if err != nil {
				return policy.DepositMode{}, err
			}
			if v.IsNil() {
				v = sdkmath.ZeroInt()
			}
			vals[i] = v
		}
		return policy.DepositPartial(vals...), nil
	case asset != "":
		target, err := parseTarget(asset, assets)
		if err != nil {
			return policy.DepositMode{}, err
		}
		idx, ok := target.Index()
		if !ok {
			return policy.DepositMode{}, errors.New("--asset must name one base asset")
		}
		coin, _ := assets.BaseByIndex(idx)
		v, err := parseAmount(amount, coin)
		if err != nil {
			return policy.DepositMode{}, err
		}
		if v.IsNil() {
			return policy.DepositMode{}, errors.New("--amount is required with --asset")
		}
		return policy.DepositSingle(idx, v), nil
	default:
		return policy.DepositAll(), nil
	}
}

// withdrawMode builds the withdraw mode from --fraction or --shares. Neither exits every share.
func withdrawMode(assets types.Assets, fraction uint64, shares, target string) (policy.WithdrawMode, error) {
	sel, err := parseTarget(target, assets)
	if err != nil {
		return policy.WithdrawMode{}, err
	}
	switch {
	case fraction > 0 && shares != "":
		return policy.WithdrawMode{}, fmt.Errorf("%w: --fraction and --shares", errConflictingFlags)
	case shares != "":
		amt, err := shareAmount(shares, assets)
		if err != nil {
			return policy.WithdrawMode{}, err
		}
		return policy.WithdrawExact(amt, sel), nil
	case fraction > 0:
		return policy.WithdrawFraction(fraction, sel), nil
	default:
		return policy.WithdrawAll(sel), nil
	}
}

// targetMinOut parses --min-out in units of the selected exit asset.
func targetMinOut(assets types.Assets, sel types.AssetSelector, minOut string) (sdkmath.Int, error) {
	if minOut == "" {
		return sdkmath.Int{}, nil
	}
	idx, ok := sel.Index()
	if !ok {
		return sdkmath.Int{}, errors.New("--min-out needs a single target asset")
	}
	coin, err := assets.BaseByIndex(idx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return parseAmount(minOut, coin)
}

// rewardMinOut parses --min-out REWARD=amount pairs. Amounts are human units of
// the reinvest asset, the output of each route's final hop.
func rewardMinOut(assets types.Assets, reinvest types.AssetID, pairs map[string]string) (harvester.MinOut, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out, err := assets.ByID(reinvest)
	if err != nil {
		return nil, err
	}
	floors := make(harvester.MinOut, len(pairs))
	for k, v := range pairs {
		reward, err := assets.ByID(types.AssetID(strings.ToUpper(strings.TrimSpace(k))))
		if err != nil {
			return nil, err
		}
		if reward.Kind != types.AssetKindReward {
			return nil, fmt.Errorf("%w: %s is not a reward asset", types.ErrUnknownAsset, reward.ID)
		}
		amt, err := parseAmount(v, out)
		if err != nil {
			return nil, err
		}
		if amt.IsNil() {
			return nil, fmt.Errorf("--min-out %s needs an amount", reward.ID)
		}
		floors[reward.ID] = amt
	}
	return floors, nil
}
