package evm

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/types"
)

type rewardSource struct {
	kind  string
	token common.Address
	pool  common.Address // extra reward contract, extra kind only
}

// ConvexBooster binds a Convex booster pool and its base reward pool.
// Unstaked receipts are held as the pool's deposit token; staked receipts live in the reward pool.
type ConvexBooster struct {
	client     *Client
	name       string
	addr       common.Address
	pid        *big.Int
	rewardPool common.Address
	share      common.Address
	deposit    common.Address
	rewards    []types.AssetID
	sources    map[types.AssetID]rewardSource
}

func NewConvexBooster(client *Client, cfg config.BoosterConfig, assets types.Assets) (*ConvexBooster, error) {
	addr, err := parseAddress(cfg.Name, cfg.Address)
	if err != nil {
		return nil, err
	}
	rewardPool, err := parseAddress(cfg.Name+" reward pool", cfg.RewardPool)
	if err != nil {
		return nil, err
	}
	share, err := tierAddress(assets, types.AssetKindPoolShare)
	if err != nil {
		return nil, err
	}
	deposit, err := tierAddress(assets, types.AssetKindBoosterDeposit)
	if err != nil {
		return nil, err
	}

	b := &ConvexBooster{
		client:     client,
		name:       cfg.Name,
		addr:       addr,
		pid:        new(big.Int).SetUint64(cfg.PoolID),
		rewardPool: rewardPool,
		share:      share,
		deposit:    deposit,
		rewards:    assets.Rewards(),
		sources:    make(map[types.AssetID]rewardSource, len(cfg.Rewards)),
	}
	for _, id := range b.rewards {
		srcCfg, ok := cfg.Rewards[id]
		if !ok {
			return nil, fmt.Errorf("booster %s has no reward source for %s", cfg.Name, id)
		}
		asset, err := assets.ByID(id)
		if err != nil {
			return nil, err
		}
		src := rewardSource{kind: srcCfg.Kind}
		if src.token, err = parseAddress(string(id), asset.Address); err != nil {
			return nil, err
		}
		if srcCfg.Kind == config.RewardSourceExtra {
			if src.pool, err = parseAddress(string(id)+" reward contract", srcCfg.Address); err != nil {
				return nil, err
			}
		}
		b.sources[id] = src
	}
	return b, nil
}

func (b *ConvexBooster) Name() string { return b.name }

func (b *ConvexBooster) RewardAssets() []types.AssetID {
	return append([]types.AssetID(nil), b.rewards...)
}

func (b *ConvexBooster) Deposit(ctx context.Context, shares sdkmath.Int, stake bool) (sdkmath.Int, error) {
	amount := bigOrZero(shares)
	if err := b.client.ensureAllowance(ctx, b.share, b.addr, amount); err != nil {
		return sdkmath.Int{}, err
	}
	data, err := boosterABI.Pack("deposit", b.pid, amount, stake)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack deposit: %w", err)
	}
	receipt, err := b.client.send(ctx, b.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if stake {
		return sdkmath.NewIntFromBigInt(b.client.staked(receipt, b.rewardPool)), nil
	}
	return sdkmath.NewIntFromBigInt(b.client.transferred(receipt, b.deposit)), nil
}

func (b *ConvexBooster) Withdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	data, err := boosterABI.Pack("withdraw", b.pid, bigOrZero(amount))
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pack withdraw: %w", err)
	}
	receipt, err := b.client.send(ctx, b.addr, data)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(b.client.transferred(receipt, b.share)), nil
}

func (b *ConvexBooster) Stake(ctx context.Context, amount sdkmath.Int) error {
	raw := bigOrZero(amount)
	if err := b.client.ensureAllowance(ctx, b.deposit, b.rewardPool, raw); err != nil {
		return err
	}
	data, err := rewardPoolABI.Pack("stake", raw)
	if err != nil {
		return fmt.Errorf("pack stake: %w", err)
	}
	_, err = b.client.send(ctx, b.rewardPool, data)
	return err
}

// Unstake returns staked receipts to the deposit tier without claiming.
func (b *ConvexBooster) Unstake(ctx context.Context, amount sdkmath.Int) error {
	data, err := rewardPoolABI.Pack("withdraw", bigOrZero(amount), false)
	if err != nil {
		return fmt.Errorf("pack withdraw: %w", err)
	}
	_, err = b.client.send(ctx, b.rewardPool, data)
	return err
}

func (b *ConvexBooster) Earned(ctx context.Context, reward types.AssetID) (sdkmath.Int, error) {
	src, ok := b.sources[reward]
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s is not a reward of %s", types.ErrUnknownAsset, reward, b.name)
	}
	var (
		earned *big.Int
		err    error
	)
	switch src.kind {
	case config.RewardSourceMain:
		earned, err = b.earned(ctx, b.rewardPool)
	case config.RewardSourceExtra:
		earned, err = b.earned(ctx, src.pool)
	case config.RewardSourceCVXMint:
		earned, err = b.cvxEarned(ctx, src.token)
	default:
		err = fmt.Errorf("%w: reward %s has unknown source %q", types.ErrVenueQuery, reward, src.kind)
	}
	if err != nil {
		return sdkmath.Int{}, err
	}
	return sdkmath.NewIntFromBigInt(earned), nil
}

// GetReward claims the main reward and every extra reward. The CVX mint
// arrives in the same transaction.
func (b *ConvexBooster) GetReward(ctx context.Context) (types.ClaimedRewards, error) {
	data, err := rewardPoolABI.Pack("getReward", b.client.From(), true)
	if err != nil {
		return nil, fmt.Errorf("pack getReward: %w", err)
	}
	receipt, err := b.client.send(ctx, b.rewardPool, data)
	if err != nil {
		return nil, err
	}
	claimed := make(types.ClaimedRewards, len(b.rewards))
	for _, id := range b.rewards {
		claimed[id] = sdkmath.NewIntFromBigInt(b.client.transferred(receipt, b.sources[id].token))
	}
	return claimed, nil
}

func (b *ConvexBooster) earned(ctx context.Context, pool common.Address) (*big.Int, error) {
	data, err := rewardPoolABI.Pack("earned", b.client.From())
	if err != nil {
		return nil, fmt.Errorf("pack earned: %w", err)
	}
	out, err := b.client.call(ctx, pool, data)
	if err != nil {
		return nil, err
	}
	earned, err := unpackUint(rewardPoolABI, "earned", out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrVenueQuery, err)
	}
	return earned, nil
}

func (b *ConvexBooster) cvxEarned(ctx context.Context, cvx common.Address) (*big.Int, error) {
	crv, err := b.earned(ctx, b.rewardPool)
	if err != nil {
		return nil, err
	}
	data, err := erc20ABI.Pack("totalSupply")
	if err != nil {
		return nil, fmt.Errorf("pack totalSupply: %w", err)
	}
	out, err := b.client.call(ctx, cvx, data)
	if err != nil {
		return nil, err
	}
	supply, err := unpackUint(erc20ABI, "totalSupply", out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrVenueQuery, err)
	}
	return cvxMinted(crv, supply), nil
}

func tierAddress(assets types.Assets, kind types.AssetKind) (common.Address, error) {
	asset, err := assets.Single(kind)
	if err != nil {
		return common.Address{}, err
	}
	return parseAddress(string(asset.ID), asset.Address)
}
