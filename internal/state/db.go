package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var ErrDBNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DBConfigFromEnv reads the DB_* environment variables. Persistence is optional:
// ok is false when DB_NAME is unset.
func DBConfigFromEnv() (cfg DBConfig, ok bool) {
	cfg = DBConfig{
		Host:     os.Getenv("DB_HOST"),
		Port:     5432,
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}
	if p, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil && p > 0 {
		cfg.Port = p
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	return cfg, cfg.DBName != ""
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(10)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = TestDBConnection(); err != nil {
		DB.Close()
		DB = nil
		return err
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to the PostgreSQL database")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS strategy_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		reinvest_asset VARCHAR(32) NOT NULL,
		withdraw_slippage_bps INTEGER NOT NULL,
		require_harvest_before_unstake BOOLEAN NOT NULL,
		reward_min_out JSONB NOT NULL,
		min_harvest_raw JSONB NOT NULL,
		CONSTRAINT uq_strategy_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_strategy_parameters_config_active ON strategy_parameters(config_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS workflow_reports (
		report_id SERIAL PRIMARY KEY,
		workflow_id UUID NOT NULL UNIQUE,
		workflow VARCHAR(64) NOT NULL,
		state VARCHAR(16) NOT NULL,
		total_steps INTEGER NOT NULL,
		failed_step INTEGER NOT NULL,
		step_names TEXT[],
		steps JSONB NOT NULL,
		position_before JSONB,
		position_last_observed JSONB,
		position_after JSONB,
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workflow_reports_finished ON workflow_reports(finished_at DESC);
	CREATE INDEX IF NOT EXISTS idx_workflow_reports_workflow ON workflow_reports(workflow, state);

	CREATE TABLE IF NOT EXISTS cycle_counters (
		name VARCHAR(64) PRIMARY KEY,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// DropSchema removes every router table. Used by the reset script only.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	_, err := DB.Exec(`
		DROP TABLE IF EXISTS workflow_reports CASCADE;
		DROP TABLE IF EXISTS strategy_parameters CASCADE;
		DROP TABLE IF EXISTS cycle_counters CASCADE;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Dropped router tables")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
