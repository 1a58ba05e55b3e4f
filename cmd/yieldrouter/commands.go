package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/engine"
	"github.com/elys-network/yieldrouter/internal/harvester"
	"github.com/elys-network/yieldrouter/internal/policy"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/web"
)

// outcome is what a one-off command prints to stdout.
type outcome struct {
	Mode    string                  `json:"mode"`
	Result  map[string]any          `json:"result,omitempty"`
	Reports []*types.WorkflowReport `json:"reports,omitempty"`
}

type action func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error)

// oneOff wires a router, prepares the sim position, runs fn and prints its outcome.
// The outcome is printed even when fn fails so an aborted report is never lost.
func oneOff(opts *simOptions, fn action) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := newRouter()
		if err != nil {
			return err
		}
		defer r.Close()

		ctx := cmd.Context()
		if err := prepareSim(ctx, r, opts); err != nil {
			return err
		}

		result, reports, runErr := fn(ctx, r)
		out := outcome{Mode: config.Mode, Result: result, Reports: compact(reports)}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to encode outcome: %w", err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return runErr
	}
}

func compact(reports []*types.WorkflowReport) []*types.WorkflowReport {
	out := reports[:0:0]
	for _, rep := range reports {
		if rep != nil {
			out = append(out, rep)
		}
	}
	return out
}

func prepareSim(ctx context.Context, r *router, opts *simOptions) error {
	if r.sim == nil || opts == nil {
		return nil
	}
	if opts.prime {
		if _, _, err := r.engine.OneShotLend(ctx, policy.DepositAll()); err != nil {
			return fmt.Errorf("failed to prime sim position: %w", err)
		}
	}
	if opts.advance > 0 {
		r.sim.Clock.Advance(opts.advance)
	}
	return nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the status API and harvest and reinvest on HARVEST_INTERVAL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRouter()
			if err != nil {
				return err
			}
			defer r.Close()
			ctx := cmd.Context()

			// Cycle numbers continue across restarts when persistence is on.
			var nextCycle func() (int, error)
			if state.DB != nil {
				nextCycle = func() (int, error) { return state.IncrementCycleNumber(state.HarvestCounter) }
			}
			if r.sim != nil {
				if _, _, err := r.engine.OneShotLend(ctx, policy.DepositAll()); err != nil {
					return fmt.Errorf("failed to prime sim position: %w", err)
				}
				persisted := nextCycle
				var count int
				nextCycle = func() (int, error) {
					r.sim.Clock.Advance(config.HarvestInterval)
					if persisted != nil {
						return persisted()
					}
					count++
					return count, nil
				}
			}

			webServer := web.NewWebServer(config.WebPort, r.engine)
			go func() {
				log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting router status API")
				if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("Web server failed to start")
				}
			}()

			loop := harvester.NewLoop(r.harvester, harvester.LoopConfig{NextCycle: nextCycle})
			loop.Run(ctx, config.HarvestInterval)
			return nil
		},
	}
}

func newStatusCmd(opts *simOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current position and engine state",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			pos, err := r.engine.Position(ctx)
			if err != nil {
				return nil, nil, err
			}
			return map[string]any{
				"position":        pos,
				"engine_state":    r.engine.State(),
				"harvest_pending": r.harvester.Pending(pos),
				"parameters":      r.engine.Params(),
			}, nil, nil
		}),
	}
}

func newLendAllCmd(opts *simOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lend-all",
		Short: "Deposit every free base balance into the pool",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			minted, rep, err := r.engine.Lend(ctx, policy.DepositAll())
			return map[string]any{"minted": minted}, []*types.WorkflowReport{rep}, err
		}),
	}
}

func newWithdrawAllCmd(opts *simOptions) *cobra.Command {
	var target, minOut string
	cmd := &cobra.Command{
		Use:   "withdraw-all",
		Short: "Burn every free pool share for base assets",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			sel, err := parseTarget(target, r.registry.Assets)
			if err != nil {
				return nil, nil, err
			}
			floor, err := targetMinOut(r.registry.Assets, sel, minOut)
			if err != nil {
				return nil, nil, err
			}
			amounts, rep, err := r.engine.Withdraw(ctx, engine.WithdrawRequest{Mode: policy.WithdrawAll(sel), MinOut: floor})
			return map[string]any{"amounts": amounts}, []*types.WorkflowReport{rep}, err
		}),
	}
	cmd.Flags().StringVar(&target, "target", "all", `exit asset: "all", a coin index or a base asset id`)
	cmd.Flags().StringVar(&minOut, "min-out", "", "minimum output of a single-asset exit (default: quote less slippage tolerance)")
	return cmd
}

func newStakeAllCmd(opts *simOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stake-all",
		Short: "Deposit and stake every free pool share in the booster",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			staked, rep, err := r.engine.StakeAllLP(ctx)
			return map[string]any{"staked": staked}, []*types.WorkflowReport{rep}, err
		}),
	}
}

func newRedeemAllCmd(opts *simOptions) *cobra.Command {
	var allowPending bool
	cmd := &cobra.Command{
		Use:   "redeem-all",
		Short: "Unstake everything and withdraw the booster receipts back to pool shares",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			shares, rep, err := r.engine.RedeemAllStaked(ctx, allowPending)
			return map[string]any{"pool_shares": shares}, []*types.WorkflowReport{rep}, err
		}),
	}
	cmd.Flags().BoolVar(&allowPending, "allow-pending", false, "unstake even while rewards are claimable")
	return cmd
}

func newOneShotLendCmd(opts *simOptions) *cobra.Command {
	var amounts, asset, amount string
	cmd := &cobra.Command{
		Use:   "one-shot-lend",
		Short: "Deposit base assets into the pool and stake the minted shares",
		Long: `Deposits into the pool, deposits the minted shares into the booster and stakes them
as one workflow. Without flags every free base balance is deposited.`,
		Args: cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			mode, err := depositMode(r.registry.Assets, amounts, asset, amount)
			if err != nil {
				return nil, nil, err
			}
			staked, rep, err := r.engine.OneShotLend(ctx, mode)
			return map[string]any{"mode": mode.String(), "staked": staked}, []*types.WorkflowReport{rep}, err
		}),
	}
	cmd.Flags().StringVar(&amounts, "amounts", "", "comma separated human amounts, one per pool coin")
	cmd.Flags().StringVar(&asset, "asset", "", "deposit a single base asset (coin index or id)")
	cmd.Flags().StringVar(&amount, "amount", "", "human amount for --asset")
	return cmd
}

func newOneShotWithdrawCmd(opts *simOptions) *cobra.Command {
	var (
		fraction     uint64
		shares       string
		target       string
		minOut       string
		allowPending bool
	)
	cmd := &cobra.Command{
		Use:   "one-shot-withdraw",
		Short: "Unstake, withdraw from the booster and exit the pool in one workflow",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			mode, err := withdrawMode(r.registry.Assets, fraction, shares, target)
			if err != nil {
				return nil, nil, err
			}
			floor, err := targetMinOut(r.registry.Assets, mode.Target(), minOut)
			if err != nil {
				return nil, nil, err
			}
			amounts, rep, err := r.engine.OneShotWithdraw(ctx, engine.WithdrawRequest{
				Mode:                mode,
				MinOut:              floor,
				AllowPendingRewards: allowPending,
			})
			return map[string]any{"mode": mode.String(), "amounts": amounts}, []*types.WorkflowReport{rep}, err
		}),
	}
	cmd.Flags().Uint64Var(&fraction, "fraction", 0, "exit 1/N of the staked position")
	cmd.Flags().StringVar(&shares, "shares", "", "exit an exact human amount of staked shares")
	cmd.Flags().StringVar(&target, "target", "all", `exit asset: "all", a coin index or a base asset id`)
	cmd.Flags().StringVar(&minOut, "min-out", "", "minimum output of a single-asset exit")
	cmd.Flags().BoolVar(&allowPending, "allow-pending", false, "unstake even while rewards are claimable")
	return cmd
}

func newExchangeCmd(opts *simOptions) *cobra.Command {
	var from, to, amount, minOut string
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Swap one base asset for another on the pool",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			assets := r.registry.Assets
			fromSel, err := parseTarget(from, assets)
			if err != nil {
				return nil, nil, err
			}
			toSel, err := parseTarget(to, assets)
			if err != nil {
				return nil, nil, err
			}
			fromIdx, ok1 := fromSel.Index()
			toIdx, ok2 := toSel.Index()
			if !ok1 || !ok2 {
				return nil, nil, errors.New("--from and --to must each name one base asset")
			}
			fromCoin, _ := assets.BaseByIndex(fromIdx)
			in, err := parseAmount(amount, fromCoin)
			if err != nil {
				return nil, nil, err
			}
			floor, err := targetMinOut(assets, toSel, minOut)
			if err != nil {
				return nil, nil, err
			}
			received, rep, err := r.engine.Exchange(ctx, engine.ExchangeRequest{From: fromIdx, To: toIdx, Amount: in, MinOut: floor})
			return map[string]any{"received": received}, []*types.WorkflowReport{rep}, err
		}),
	}
	cmd.Flags().StringVar(&from, "from", "", "base asset sold (coin index or id)")
	cmd.Flags().StringVar(&to, "to", "", "base asset bought (coin index or id)")
	cmd.Flags().StringVar(&amount, "amount", "", "human amount sold (default: full balance)")
	cmd.Flags().StringVar(&minOut, "min-out", "", "minimum human amount bought")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newHarvestCmd(opts *simOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Claim every reward asset without swapping",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			claimed, rep, err := r.harvester.Harvest(ctx)
			return map[string]any{"claimed": claimed}, []*types.WorkflowReport{rep}, err
		}),
	}
}

func newReinvestCmd(opts *simOptions) *cobra.Command {
	var minOut map[string]string
	cmd := &cobra.Command{
		Use:   "reinvest",
		Short: "Claim rewards, route them into the reinvest asset and stake the result",
		Args:  cobra.NoArgs,
		RunE: oneOff(opts, func(ctx context.Context, r *router) (map[string]any, []*types.WorkflowReport, error) {
			floors, err := rewardMinOut(r.registry.Assets, r.engine.Params().ReinvestAsset, minOut)
			if err != nil {
				return nil, nil, err
			}
			res, err := r.harvester.HarvestAndReinvest(ctx, floors)
			return map[string]any{
				"claimed":      res.Claimed,
				"received":     res.Received,
				"shares_added": res.SharesAdded,
			}, res.Reports, err
		}),
	}
	cmd.Flags().StringToStringVar(&minOut, "min-out", nil, "minimum human amount of the reinvest asset per reward, e.g. CRV=10,CVX=5 (default: strategy floors)")
	return cmd
}
