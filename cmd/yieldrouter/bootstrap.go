/*

This file wires one router instance: venue registry, venues for the selected mode, optional persistence,
strategy parameters, the engine and the reward harvester.

*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/engine"
	"github.com/elys-network/yieldrouter/internal/harvester"
	"github.com/elys-network/yieldrouter/internal/ledger"
	"github.com/elys-network/yieldrouter/internal/metrics"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/elys-network/yieldrouter/internal/venue"
	"github.com/elys-network/yieldrouter/internal/venue/evm"
	"github.com/elys-network/yieldrouter/internal/venue/sim"
)

// SimFunding is the human amount of every base asset credited to the custody account in sim mode.
const SimFunding = "1000000"

// simEpoch is the starting time of the simulated clock.
var simEpoch = time.Unix(1_700_000_000, 0).UTC()

// router is a fully wired instance. sim is nil in live mode.
type router struct {
	registry  *config.VenueRegistry
	engine    *engine.Engine
	harvester *harvester.Harvester
	routes    map[types.AssetID]venue.Route
	sim       *sim.Environment
	closers   []func()
}

func (r *router) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func loadRegistry() (*config.VenueRegistry, error) {
	if config.VenuesFile == "" {
		log.Info().Msg("VENUES_FILE not set, using the built-in mainnet registry")
		return config.DefaultVenueRegistry(), nil
	}
	return config.LoadVenueRegistry(config.VenuesFile)
}

// newRouter builds the router for config.Mode. The caller must Close it.
func newRouter() (*router, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load venue registry: %w", err)
	}

	r := &router{registry: reg}
	ok := false
	defer func() {
		if !ok {
			r.Close()
		}
	}()

	var set venue.Set
	now := time.Now
	switch config.Mode {
	case config.ModeSim:
		log.Warn().Msg("Initializing router in SIM mode. No transactions leave the process.")
		env, err := sim.NewEnvironment(reg, simEpoch)
		if err != nil {
			return nil, fmt.Errorf("failed to build sim environment: %w", err)
		}
		if err := env.FundBase(SimFunding); err != nil {
			return nil, fmt.Errorf("failed to fund sim account: %w", err)
		}
		r.sim = env
		set = env.Venues()
		now = env.Clock.Now
	case config.ModeLive:
		log.Warn().Msg("Initializing router in LIVE mode. Real transactions will be broadcast.")
		backend, err := evm.Dial(config.EthRPC)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, backend.Close)
		client, err := evm.NewClient(backend, config.PrivateKeyHex, config.ChainID, config.RPCRateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to create evm client: %w", err)
		}
		set, err = evm.NewVenues(client, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to bind venues: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported mode %q", config.Mode)
	}

	var sink engine.ReportSink
	if dbCfg, enabled := state.DBConfigFromEnv(); enabled {
		if err := state.InitDB(dbCfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		r.closers = append(r.closers, state.CloseDB)
		if err := state.EnsureSchema(); err != nil {
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		sink = state.ReportRecorder{}
	} else {
		log.Info().Msg("DB_NAME not set, workflow reports are kept in memory only")
	}

	params, err := loadParameters(reg.Assets)
	if err != nil {
		return nil, err
	}

	guard := venue.NewGuard(config.VenueQueryTimeout, config.VenueCallTimeout)
	l, err := ledger.New(reg.Assets, set.Tokens, set.Booster, guard, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}
	r.engine, err = engine.NewEngine(engine.Config{
		Ledger:  l,
		Venues:  set,
		Guard:   guard,
		Params:  params,
		Sink:    sink,
		Metrics: metrics.Router(),
		Now:     now,
	})
	if err != nil {
		return nil, err
	}

	r.routes, err = venue.BuildRoutes(reg, set.Swaps)
	if err != nil {
		return nil, fmt.Errorf("failed to build reward routes: %w", err)
	}
	r.harvester, err = harvester.New(harvester.Config{
		Engine:  r.engine,
		Booster: set.Booster,
		Routes:  r.routes,
		Metrics: metrics.Router(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create harvester: %w", err)
	}

	ok = true
	return r, nil
}

// loadParameters returns the active stored parameters, storing the defaults on first use.
// Without persistence the defaults are used as is.
func loadParameters(assets types.Assets) (types.StrategyParameters, error) {
	if state.DB == nil {
		return config.DefaultParameters(), nil
	}

	stored, err := state.LoadActiveStrategyParameters(config.DefaultStrategyConfigName)
	if err == nil {
		if err := stored.Validate(assets); err != nil {
			return types.StrategyParameters{}, fmt.Errorf("stored strategy parameters are invalid: %w", err)
		}
		return *stored, nil
	}
	if !errors.Is(err, state.ErrNoActiveParameters) {
		return types.StrategyParameters{}, err
	}

	log.Warn().Msg("No active strategy parameters, saving defaults")
	defaults := config.DefaultParameters()
	if _, err := state.SaveStrategyParameters(defaults, config.DefaultStrategyConfigName, true); err != nil {
		return types.StrategyParameters{}, fmt.Errorf("failed to save default strategy parameters: %w", err)
	}
	return defaults, nil
}
