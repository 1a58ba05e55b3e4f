package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
)

var ErrZeroAmount = errors.New("amount must be positive")

// Booster accepts pool shares 1:1 for deposit receipts and pays each reward at
// a fixed rate per staked 1e18 per second of simulated time.
type Booster struct {
	chain      *Chain
	name       string
	share      types.Asset
	deposit    types.Asset
	staked     types.Asset
	rewards    []types.AssetID
	rates      map[types.AssetID]sdkmath.Int
	accrued    map[types.AssetID]sdkmath.Int
	lastUpdate time.Time
}

func NewBooster(chain *Chain, name string, share, deposit, staked types.Asset, rates map[types.AssetID]sdkmath.Int) *Booster {
	b := &Booster{
		chain:      chain,
		name:       name,
		share:      share,
		deposit:    deposit,
		staked:     staked,
		rates:      rates,
		accrued:    make(map[types.AssetID]sdkmath.Int, len(rates)),
		lastUpdate: chain.Clock().Now(),
	}
	for id := range rates {
		b.rewards = append(b.rewards, id)
		b.accrued[id] = sdkmath.ZeroInt()
	}
	sortIDs(b.rewards)
	return b
}

func (b *Booster) Name() string { return b.name }

func (b *Booster) RewardAssets() []types.AssetID {
	return append([]types.AssetID(nil), b.rewards...)
}

func (b *Booster) Deposit(ctx context.Context, shares sdkmath.Int, stake bool) (sdkmath.Int, error) {
	if err := b.chain.enter(ctx, b.name, "deposit"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}

	b.chain.mu.Lock()
	defer b.chain.mu.Unlock()

	if err := b.chain.require(map[types.AssetID]sdkmath.Int{b.share.ID: shares}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	b.checkpoint()
	b.chain.debit(b.share.ID, shares)
	if stake {
		b.chain.credit(b.staked.ID, shares)
	} else {
		b.chain.credit(b.deposit.ID, shares)
	}
	return shares, nil
}

func (b *Booster) Withdraw(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := b.chain.enter(ctx, b.name, "withdraw"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrZeroAmount
	}

	b.chain.mu.Lock()
	defer b.chain.mu.Unlock()

	if err := b.chain.require(map[types.AssetID]sdkmath.Int{b.deposit.ID: amount}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	b.chain.debit(b.deposit.ID, amount)
	b.chain.credit(b.share.ID, amount)
	return amount, nil
}

func (b *Booster) Stake(ctx context.Context, amount sdkmath.Int) error {
	return b.move(ctx, "stake", b.deposit.ID, b.staked.ID, amount)
}

func (b *Booster) Unstake(ctx context.Context, amount sdkmath.Int) error {
	return b.move(ctx, "unstake", b.staked.ID, b.deposit.ID, amount)
}

func (b *Booster) Earned(ctx context.Context, reward types.AssetID) (sdkmath.Int, error) {
	if err := b.chain.enter(ctx, b.name, "earned"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	b.chain.mu.Lock()
	defer b.chain.mu.Unlock()

	if _, ok := b.accrued[reward]; !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not a reward of %s", types.ErrUnknownAsset, reward, b.name)
	}
	b.checkpoint()
	return b.accrued[reward], nil
}

func (b *Booster) GetReward(ctx context.Context) (types.ClaimedRewards, error) {
	if err := b.chain.enter(ctx, b.name, "get_reward"); err != nil {
		return nil, err
	}

	b.chain.mu.Lock()
	defer b.chain.mu.Unlock()

	b.checkpoint()
	claimed := make(types.ClaimedRewards, len(b.rewards))
	for _, id := range b.rewards {
		amt := b.accrued[id]
		claimed[id] = amt
		if amt.IsPositive() {
			b.chain.credit(id, amt)
		}
		b.accrued[id] = sdkmath.ZeroInt()
	}
	return claimed, nil
}

func (b *Booster) move(ctx context.Context, op string, from, to types.AssetID, amount sdkmath.Int) error {
	if err := b.chain.enter(ctx, b.name, op); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrZeroAmount
	}

	b.chain.mu.Lock()
	defer b.chain.mu.Unlock()

	if err := b.chain.require(map[types.AssetID]sdkmath.Int{from: amount}); err != nil {
		return err
	}
	b.checkpoint()
	b.chain.debit(from, amount)
	b.chain.credit(to, amount)
	return nil
}

// checkpoint accrues rewards on the staked balance up to now. Caller holds the lock.
func (b *Booster) checkpoint() {
	now := b.chain.clock.Now()
	elapsed := int64(now.Sub(b.lastUpdate) / time.Second)
	if elapsed <= 0 {
		return
	}
	b.lastUpdate = b.lastUpdate.Add(time.Duration(elapsed) * time.Second)

	staked := b.chain.balance(b.staked.ID)
	if staked.IsZero() {
		return
	}
	unit := utils.Pow10(poolPrecision)
	for id, rate := range b.rates {
		earned := staked.Mul(rate).MulRaw(elapsed).Quo(unit)
		b.accrued[id] = b.accrued[id].Add(earned)
	}
}

func sortIDs(ids []types.AssetID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
