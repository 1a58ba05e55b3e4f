/*

This file contains the asset ledger: the read-only view of everything the router custodies.

Nothing is cached across calls. Balances accrue and move outside our control, so every read goes to the venue.

*/

package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/utils"
	"github.com/elys-network/yieldrouter/internal/venue"
)

// maxConcurrentReads bounds parallel venue reads during a snapshot.
const maxConcurrentReads = 4

type Ledger struct {
	assets  types.Assets
	base    types.Assets
	share   types.Asset
	deposit types.Asset
	staked  types.Asset
	rewards []types.AssetID
	tokens  venue.TokenReader
	booster venue.Booster
	guard   venue.Guard
	now     func() time.Time
	logger  zerolog.Logger
}

// New builds a ledger over the configured assets.
func New(assets types.Assets, tokens venue.TokenReader, booster venue.Booster, guard venue.Guard, now func() time.Time) (*Ledger, error) {
	if err := assets.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil || booster == nil {
		return nil, fmt.Errorf("token reader and booster are required")
	}
	share, _ := assets.Single(types.AssetKindPoolShare)
	deposit, _ := assets.Single(types.AssetKindBoosterDeposit)
	staked, _ := assets.Single(types.AssetKindStaked)
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		assets:  assets,
		base:    assets.Base(),
		share:   share,
		deposit: deposit,
		staked:  staked,
		rewards: assets.Rewards(),
		tokens:  tokens,
		booster: booster,
		guard:   guard,
		now:     now,
		logger:  logger.GetForComponent("asset_ledger"),
	}, nil
}

func (l *Ledger) Assets() types.Assets { return l.assets }

func (l *Ledger) BaseAssets() types.Assets { return l.base }

// BalanceOf returns the raw balance of an asset. An empty holding is zero, never an error.
func (l *Ledger) BalanceOf(ctx context.Context, id types.AssetID) (sdkmath.Int, error) {
	asset, err := l.assets.ByID(id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	bal, err := venue.Query(ctx, l.guard, "token", "balance_of:"+string(id), func(ctx context.Context) (sdkmath.Int, error) {
		return l.tokens.BalanceOf(ctx, asset)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if bal.IsNil() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nil balance for %s", types.ErrVenueQuery, id)
	}
	if bal.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: negative balance %s for %s", types.ErrVenueQuery, bal, id)
	}
	return bal, nil
}

// BaseBalances returns the base asset balances indexed by pool coin index.
func (l *Ledger) BaseBalances(ctx context.Context) ([]sdkmath.Int, error) {
	out := make([]sdkmath.Int, len(l.base))
	for i, a := range l.base {
		bal, err := l.BalanceOf(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		out[i] = bal
	}
	return out, nil
}

// Claimable returns the accrued, unclaimed amount of every reward asset.
func (l *Ledger) Claimable(ctx context.Context) (map[types.AssetID]sdkmath.Int, error) {
	out := make(map[types.AssetID]sdkmath.Int, len(l.rewards))
	for _, id := range l.rewards {
		amt, err := l.earned(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = amt
	}
	return out, nil
}

func (l *Ledger) earned(ctx context.Context, id types.AssetID) (sdkmath.Int, error) {
	amt, err := venue.Query(ctx, l.guard, l.booster.Name(), "earned:"+string(id), func(ctx context.Context) (sdkmath.Int, error) {
		return l.booster.Earned(ctx, id)
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amt.IsNil() || amt.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: invalid claimable %s for %s", types.ErrVenueQuery, amt, id)
	}
	return amt, nil
}

// Snapshot reads the full position. Reads run concurrently; any failure fails the snapshot.
func (l *Ledger) Snapshot(ctx context.Context) (types.Position, error) {
	pos := types.NewPosition(len(l.base))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)

	read := func(id types.AssetID, set func(sdkmath.Int)) {
		g.Go(func() error {
			bal, err := l.BalanceOf(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			set(bal)
			mu.Unlock()
			return nil
		})
	}

	for i, a := range l.base {
		read(a.ID, func(v sdkmath.Int) { pos.BaseBalances[i] = v })
	}
	read(l.share.ID, func(v sdkmath.Int) { pos.PoolShares = v })
	read(l.deposit.ID, func(v sdkmath.Int) { pos.BoosterDeposit = v })
	read(l.staked.ID, func(v sdkmath.Int) { pos.Staked = v })
	for _, id := range l.rewards {
		read(id, func(v sdkmath.Int) { pos.RewardBalances[id] = v })
		g.Go(func() error {
			amt, err := l.earned(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			pos.ClaimableRewards[id] = amt
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return types.Position{}, err
	}
	pos.ObservedAt = l.now()

	l.logger.Debug().
		Str("pool_shares", pos.PoolShares.String()).
		Str("booster_deposit", pos.BoosterDeposit.String()).
		Str("staked", pos.Staked.String()).
		Msg("Position snapshot taken")
	return pos, nil
}

// Normalize converts a raw amount of an asset to human scale. Reporting only.
func (l *Ledger) Normalize(id types.AssetID, raw sdkmath.Int) (sdkmath.LegacyDec, error) {
	asset, err := l.assets.ByID(id)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return utils.Normalize(raw, asset.Decimals)
}

// Denormalize converts a human-scale amount of an asset to raw units, flooring.
func (l *Ledger) Denormalize(id types.AssetID, human sdkmath.LegacyDec) (sdkmath.Int, error) {
	asset, err := l.assets.ByID(id)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.Denormalize(human, asset.Decimals)
}
