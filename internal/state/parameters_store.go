package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldrouter/internal/types"
)

var ErrNoActiveParameters = errors.New("no active strategy parameters")

// SaveStrategyParameters stores params as the next version of configName and
// returns the new params_id. With makeActive the previous active version is retired.
func SaveStrategyParameters(params types.StrategyParameters, configName string, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	minOutJSON, err := json.Marshal(params.RewardMinOut)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal reward_min_out: %w", err)
	}
	minHarvestJSON, err := json.Marshal(params.MinHarvestRaw)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal min_harvest_raw: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	var version int
	err = tx.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM strategy_parameters WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read next version for %s: %w", configName, err)
	}

	if makeActive {
		_, err = tx.Exec(`UPDATE strategy_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
		INSERT INTO strategy_parameters (
			version, config_name, is_active, activated_at, created_at,
			reinvest_asset, withdraw_slippage_bps, require_harvest_before_unstake,
			reward_min_out, min_harvest_raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING params_id;`

	var paramsID int64
	now := time.Now().UTC()
	err = tx.QueryRow(stmt,
		version, configName, makeActive, now, now,
		string(params.ReinvestAsset), params.WithdrawSlippageBps, params.RequireHarvestBeforeUnstake,
		minOutJSON, minHarvestJSON,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert strategy parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved strategy parameters")
	return paramsID, nil
}

// LoadActiveStrategyParameters loads the active parameter version of configName.
func LoadActiveStrategyParameters(configName string) (*types.StrategyParameters, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT reinvest_asset, withdraw_slippage_bps, require_harvest_before_unstake, reward_min_out, min_harvest_raw
		FROM strategy_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var p types.StrategyParameters
	var reinvest string
	var minOutJSON, minHarvestJSON []byte
	err := DB.QueryRow(query, configName).Scan(&reinvest, &p.WithdrawSlippageBps, &p.RequireHarvestBeforeUnstake, &minOutJSON, &minHarvestJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for config '%s'", ErrNoActiveParameters, configName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan active strategy parameters for config '%s': %w", configName, err)
	}
	p.ReinvestAsset = types.AssetID(reinvest)
	p.RewardMinOut = map[types.AssetID]sdkmath.Int{}
	p.MinHarvestRaw = map[types.AssetID]sdkmath.Int{}
	if err := json.Unmarshal(minOutJSON, &p.RewardMinOut); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reward_min_out: %w", err)
	}
	if err := json.Unmarshal(minHarvestJSON, &p.MinHarvestRaw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal min_harvest_raw: %w", err)
	}

	log.Info().Str("config", configName).Msg("Loaded active strategy parameters")
	return &p, nil
}
