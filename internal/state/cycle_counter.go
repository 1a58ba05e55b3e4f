/*

This file manages the persistent cycle counters of the periodic loops.
Each loop has a named counter so cycle numbers continue across restarts.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// HarvestCounter names the counter of the harvest loop.
const HarvestCounter = "harvest"

// GetCurrentCycleNumber returns the last cycle number of a counter, zero if it never ran.
func GetCurrentCycleNumber(name string) (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var currentCycle int
	err := DB.QueryRow(`SELECT current_cycle FROM cycle_counters WHERE name = $1;`, name).Scan(&currentCycle)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cycle number for %s: %w", name, err)
	}
	return currentCycle, nil
}

// IncrementCycleNumber increments a counter, creating it on first use, and returns the new value.
func IncrementCycleNumber(name string) (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	query := `
		INSERT INTO cycle_counters (name, current_cycle, updated_at)
		VALUES ($1, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE
		SET current_cycle = cycle_counters.current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING current_cycle;`

	var newCycle int
	if err := DB.QueryRow(query, name).Scan(&newCycle); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number for %s: %w", name, err)
	}

	log.Debug().Str("counter", name).Int("cycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}

// ResetCycleNumber sets a counter to a specific value (for testing/maintenance).
func ResetCycleNumber(name string, cycleNumber int) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	query := `
		INSERT INTO cycle_counters (name, current_cycle, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE
		SET current_cycle = EXCLUDED.current_cycle,
		    updated_at = CURRENT_TIMESTAMP;`

	if _, err := DB.Exec(query, name, cycleNumber); err != nil {
		return fmt.Errorf("failed to reset cycle number for %s to %d: %w", name, cycleNumber, err)
	}

	log.Warn().Str("counter", name).Int("cycle", cycleNumber).Msg("Reset cycle counter")
	return nil
}
