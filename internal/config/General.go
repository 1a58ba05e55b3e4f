package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Run modes. Anything other than these halts the process.
const (
	ModeLive = "live"
	ModeSim  = "sim"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode is the safety switch selecting real venues (live) or in-memory venues (sim).
	Mode string

	// PrivateKeyHex is the hex-encoded signing key of the custody account. Live mode only.
	PrivateKeyHex string

	// VenuesFile is the path of the YAML venue registry. Empty selects the built-in mainnet registry.
	VenuesFile string

	// VenueCallTimeout bounds every state-changing venue call.
	VenueCallTimeout time.Duration
	// VenueQueryTimeout bounds every read-only venue call.
	VenueQueryTimeout time.Duration

	// HarvestInterval is the period of the harvest and reinvest loop.
	HarvestInterval time.Duration

	// WebPort is the port of the status API.
	WebPort string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFile, when set, receives a rotated copy of every log line.
	LogFile string
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultVenueCallTimeout  = 60 * time.Second
	DefaultVenueQueryTimeout = 10 * time.Second
	DefaultHarvestInterval   = 24 * time.Hour
	DefaultWebPort           = "8080"
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// ROUTER_MODE is always required; the signing key and chain endpoints only in live mode.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode, err = getEnv("ROUTER_MODE")
	if err != nil {
		return err
	}
	if Mode != ModeLive && Mode != ModeSim {
		return errors.New("ROUTER_MODE must be 'live' or 'sim', got: " + Mode)
	}

	VenuesFile = getEnvOrDefault("VENUES_FILE", "")

	VenueCallTimeout, err = getEnvAsDuration("VENUE_CALL_TIMEOUT", DefaultVenueCallTimeout)
	if err != nil {
		return err
	}

	VenueQueryTimeout, err = getEnvAsDuration("VENUE_QUERY_TIMEOUT", DefaultVenueQueryTimeout)
	if err != nil {
		return err
	}

	HarvestInterval, err = getEnvAsDuration("HARVEST_INTERVAL", DefaultHarvestInterval)
	if err != nil {
		return err
	}

	WebPort = getEnvOrDefault("WEB_PORT", DefaultWebPort)
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	if Mode == ModeLive {
		PrivateKeyHex, err = getEnv("ROUTER_PRIVATE_KEY")
		if err != nil {
			return err
		}

		// Load endpoint configuration
		if err := loadEndpointConfig(); err != nil {
			return err
		}
	}

	log.Debug().
		Str("Mode", Mode).
		Str("VenuesFile", VenuesFile).
		Dur("VenueCallTimeout", VenueCallTimeout).
		Dur("VenueQueryTimeout", VenueQueryTimeout).
		Dur("HarvestInterval", HarvestInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64 retrieves an optional environment variable as a float64.
func getEnvAsFloat64(key string, fallback float64) (float64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an optional environment variable as a Go duration.
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}
