package config

import (
	"github.com/rs/zerolog/log"
)

// DefaultRPCRateLimit is the request budget per second against the node.
const DefaultRPCRateLimit = 10.0

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EthRPC is the JSON-RPC endpoint of the Ethereum node.
	EthRPC string
	// ChainID is the EIP-155 chain id used for signing.
	ChainID uint64
	// RPCRateLimit caps node requests per second.
	RPCRateLimit float64
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	EthRPC, err = getEnv("ETH_RPC")
	if err != nil {
		return err
	}

	ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return err
	}

	RPCRateLimit, err = getEnvAsFloat64("RPC_RATE_LIMIT", DefaultRPCRateLimit)
	if err != nil {
		return err
	}

	log.Debug().
		Str("EthRPC", EthRPC).
		Uint64("ChainID", ChainID).
		Float64("RPCRateLimit", RPCRateLimit).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
