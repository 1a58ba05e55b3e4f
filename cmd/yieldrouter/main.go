package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/logger"
)

// simOptions shape the simulated position before a command runs. Ignored in live mode.
type simOptions struct {
	prime   bool
	advance time.Duration
}

// newRootCmd builds the command tree. Every invocation gets fresh flag state.
func newRootCmd() *cobra.Command {
	opts := &simOptions{}

	root := &cobra.Command{
		Use:   "yieldrouter",
		Short: "Yield router for stable pool liquidity, booster staking and reward reinvestment",
		Long: `yieldrouter moves stablecoins through a liquidity pool, a booster and its
reward pool, and routes the earned rewards back into the pool.

ROUTER_MODE selects the venues: "live" binds the configured contracts and
broadcasts real transactions, "sim" runs every command against in-memory venues
funded with ` + SimFunding + ` of each base asset.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger.Initialize(config.LogLevel, config.LogFile)
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&opts.prime, "sim-prime", false, "sim mode: lend and stake the funded balances before the command")
	root.PersistentFlags().DurationVar(&opts.advance, "sim-advance", 0, "sim mode: advance the simulated clock before the command")

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(opts),
		newLendAllCmd(opts),
		newWithdrawAllCmd(opts),
		newStakeAllCmd(opts),
		newRedeemAllCmd(opts),
		newOneShotLendCmd(opts),
		newOneShotWithdrawCmd(opts),
		newExchangeCmd(opts),
		newHarvestCmd(opts),
		newReinvestCmd(opts),
	)
	return root
}

// main is the entry point of the router.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
