/*

This file contains the reward harvester: claiming booster rewards, routing them into a base asset and putting that asset
back to work through the routing engine.

*/

package harvester

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldrouter/internal/engine"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/policy"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
)

// Config holds the dependencies of a harvester.
type Config struct {
	Engine  *engine.Engine
	Booster venue.Booster
	Routes  map[types.AssetID]venue.Route
	Metrics *metrics.RouterMetrics // optional
}

type Harvester struct {
	engine  *engine.Engine
	booster venue.Booster
	routes  map[types.AssetID]venue.Route
	metrics *metrics.RouterMetrics
	logger  zerolog.Logger
}

// Result is the outcome of one harvest-and-reinvest pass.
type Result struct {
	Claimed     types.ClaimedRewards
	Received    sdkmath.Int // reinvest asset obtained from the swaps
	SharesAdded sdkmath.Int // booster receipts staked by the reinvestment
	Reports     []*types.WorkflowReport
}

func New(cfg Config) (*Harvester, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if cfg.Booster == nil {
		return nil, errors.New("booster cannot be nil")
	}
	for _, id := range cfg.Booster.RewardAssets() {
		if _, ok := cfg.Routes[id]; !ok {
			return nil, fmt.Errorf("no swap route for reward %s", id)
		}
	}
	return &Harvester{
		engine:  cfg.Engine,
		booster: cfg.Booster,
		routes:  cfg.Routes,
		metrics: cfg.Metrics,
		logger:  logger.GetForComponent("reward_harvester"),
	}, nil
}

// Harvest claims every reward asset. The returned amounts are what the claim
// call itself realized, not a balance difference.
func (h *Harvester) Harvest(ctx context.Context) (types.ClaimedRewards, *types.WorkflowReport, error) {
	claimed := types.ClaimedRewards{}
	report, err := h.engine.Execute(ctx, types.WorkflowHarvest, func(ctx context.Context, before types.Position) ([]engine.Step, error) {
		return []engine.Step{{
			Name:  engine.StepClaimRewards,
			Venue: h.booster.Name(),
			Run: func(ctx context.Context) (engine.Outputs, error) {
				got, err := h.booster.GetReward(ctx)
				if err != nil {
					return nil, err
				}
				outputs := engine.Outputs{}
				for _, id := range got.Assets() {
					amt := got.Get(id)
					if amt.IsNegative() {
						return nil, fmt.Errorf("%w: negative claim %s for %s", types.ErrVenueCall, amt, id)
					}
					claimed[id] = amt
					outputs["claimed:"+string(id)] = amt
				}
				return outputs, nil
			},
		}}, nil
	})
	if err != nil {
		return nil, report, err
	}
	h.metrics.ObserveClaim(claimed)
	h.logger.Info().Interface("claimed", claimedStrings(claimed)).Msg("Rewards harvested")
	return claimed, report, nil
}

// MinOut overrides the final-hop floor per reward, in raw units of the reinvest asset.
// Rewards missing from the map keep the strategy minimum.
type MinOut map[types.AssetID]sdkmath.Int

func (m MinOut) floor(params types.StrategyParameters, id types.AssetID) sdkmath.Int {
	if amt, ok := m[id]; ok && !amt.IsNil() {
		return amt
	}
	return params.MinOutFor(id)
}

// Reinvest swaps each claimed reward along its route into the reinvest asset,
// then deposits and stakes exactly the amount received. Intermediate hops carry
// no output floor; the final hop is held to minOut, or the strategy minimum for
// that reward when minOut has no entry.
func (h *Harvester) Reinvest(ctx context.Context, claimed types.ClaimedRewards, minOut MinOut) (Result, error) {
	result := Result{Claimed: claimed, Received: sdkmath.ZeroInt(), SharesAdded: sdkmath.ZeroInt()}
	params := h.engine.Params()
	reinvest, err := h.engine.Ledger().Assets().ByID(params.ReinvestAsset)
	if err != nil {
		return result, err
	}

	var legs []*sdkmath.Int
	report, err := h.engine.Execute(ctx, types.WorkflowSwapRewards, func(ctx context.Context, before types.Position) ([]engine.Step, error) {
		var steps []engine.Step
		for id, amt := range minOut {
			if amt.IsNil() || amt.IsNegative() {
				return nil, fmt.Errorf("%w: minimum output for %s must be non-negative", types.ErrInvalidPlan, id)
			}
		}
		for _, id := range claimed.Assets() {
			amount := claimed.Get(id)
			if !amount.IsPositive() {
				continue
			}
			held, ok := before.RewardBalances[id]
			if !ok || held.LT(amount) {
				return nil, fmt.Errorf("%w: %s claimed %s but holding %v", types.ErrInsufficientBalance, id, amount, held)
			}
			route, ok := h.routes[id]
			if !ok {
				return nil, errors.Join(types.ErrInvalidPlan, fmt.Errorf("no swap route for %s", id))
			}
			if route.Target() != reinvest.ID {
				return nil, errors.Join(types.ErrInvalidPlan, fmt.Errorf("route for %s ends in %s, reinvest asset is %s", id, route.Target(), reinvest.ID))
			}
			routeSteps, out := h.routeSteps(route, amount, minOut.floor(params, id))
			steps = append(steps, routeSteps...)
			legs = append(legs, out)
		}
		return steps, nil
	})
	result.Reports = append(result.Reports, report)
	if err != nil {
		return result, err
	}
	received := sdkmath.ZeroInt()
	for _, leg := range legs {
		received = received.Add(*leg)
	}
	result.Received = received

	if !received.IsPositive() {
		h.logger.Info().Msg("Nothing received from reward swaps, skipping deposit")
		return result, nil
	}

	staked, lendReport, err := h.engine.OneShotLend(ctx, policy.DepositSingle(reinvest.Index, received))
	result.Reports = append(result.Reports, lendReport)
	if err != nil {
		return result, err
	}
	result.SharesAdded = staked

	h.logger.Info().
		Str("received", received.String()).
		Str("asset", string(reinvest.ID)).
		Str("shares_added", staked.String()).
		Msg("Rewards reinvested")
	return result, nil
}

// HarvestAndReinvest claims and reinvests in two workflows.
func (h *Harvester) HarvestAndReinvest(ctx context.Context, minOut MinOut) (Result, error) {
	claimed, report, err := h.Harvest(ctx)
	if err != nil {
		return Result{Reports: []*types.WorkflowReport{report}}, err
	}
	result, err := h.Reinvest(ctx, claimed, minOut)
	result.Reports = append([]*types.WorkflowReport{report}, result.Reports...)
	return result, err
}

// Pending reports whether any claimable reward has reached its harvest threshold.
func (h *Harvester) Pending(pos types.Position) bool {
	params := h.engine.Params()
	for id, amt := range pos.ClaimableRewards {
		if amt.IsPositive() && amt.GTE(params.HarvestThreshold(id)) {
			return true
		}
	}
	return false
}

// routeSteps builds one swap step per hop, each consuming the previous hop's output.
func (h *Harvester) routeSteps(route venue.Route, amount, finalMin sdkmath.Int) ([]engine.Step, *sdkmath.Int) {
	steps := make([]engine.Step, 0, len(route.Hops))
	input := amount
	in := &input
	for i, hop := range route.Hops {
		minOut := sdkmath.ZeroInt()
		if i == len(route.Hops)-1 {
			minOut = finalMin
		}
		out := sdkmath.ZeroInt()
		steps = append(steps, swapStep(hop, in, minOut, &out))
		in = &out
	}
	return steps, in
}

func swapStep(hop venue.Hop, in *sdkmath.Int, minOut sdkmath.Int, out *sdkmath.Int) engine.Step {
	return engine.Step{
		Name:  fmt.Sprintf("%s:%s->%s", engine.StepSwapRewardPrefix, hop.From, hop.To),
		Venue: hop.Venue.Name(),
		Run: func(ctx context.Context) (engine.Outputs, error) {
			amount := *in
			if !amount.IsPositive() {
				return nil, engine.ErrStepSkipped
			}
			got, err := hop.Venue.Exchange(ctx, hop.From, hop.To, amount, minOut)
			if err != nil {
				return nil, err
			}
			if got.IsNil() || got.LT(minOut) {
				return nil, fmt.Errorf("%w: %s->%s received %v, minimum %s", types.ErrSlippageExceeded, hop.From, hop.To, got, minOut)
			}
			*out = got
			return engine.Outputs{"amount_in": amount, "min_out": minOut, "amount_out": got}, nil
		},
	}
}

func claimedStrings(c types.ClaimedRewards) map[string]string {
	out := make(map[string]string, len(c))
	for _, id := range c.Assets() {
		out[string(id)] = c.Get(id).String()
	}
	return out
}
