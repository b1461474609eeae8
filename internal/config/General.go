package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LocalChainID is the chain this coordinator instance runs against
	// directly. Vaults on any other chain are reached via the relay.
	LocalChainID uint64

	// HoldingAddress is the intermediate account rebalance proceeds pass
	// through between the withdrawal and deposit legs.
	HoldingAddress string

	// RelayEndpoint is the gRPC endpoint of the cross-chain relay service.
	RelayEndpoint string

	// NodeGRPC is the gRPC endpoint of the local chain's vault gateway.
	NodeGRPC string

	// OperationTimeout bounds how long a dispatched cross-chain operation may
	// stay unresolved before being expired.
	OperationTimeout time.Duration

	// RedemptionTimeout bounds how long an approved redemption route stays
	// executable.
	RedemptionTimeout time.Duration

	// RedemptionPolicy is "BEST_EFFORT" or "REJECT_ON_INSUFFICIENT".
	RedemptionPolicy string

	// EmergencySlippageBps is the price impact ceiling for EMERGENCY routes.
	EmergencySlippageBps int64
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. LOCAL_CHAIN_ID, HOLDING_ADDRESS, RELAY_GRPC_ENDPOINT
// and NODE_GRPC are required; the rest fall back to defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LocalChainID, err = getEnvAsUint64("LOCAL_CHAIN_ID")
	if err != nil {
		return err
	}

	HoldingAddress, err = getEnv("HOLDING_ADDRESS")
	if err != nil {
		return err
	}

	RelayEndpoint, err = getEnv("RELAY_GRPC_ENDPOINT")
	if err != nil {
		return err
	}

	NodeGRPC, err = getEnv("NODE_GRPC")
	if err != nil {
		return err
	}

	opTimeoutMin, err := getEnvAsInt64Or("OPERATION_TIMEOUT_MINUTES", 60)
	if err != nil {
		return err
	}
	if opTimeoutMin <= 0 {
		return errors.New("OPERATION_TIMEOUT_MINUTES must be positive")
	}
	OperationTimeout = time.Duration(opTimeoutMin) * time.Minute

	redeemTimeoutMin, err := getEnvAsInt64Or("REDEMPTION_TIMEOUT_MINUTES", 60)
	if err != nil {
		return err
	}
	if redeemTimeoutMin <= 0 {
		return errors.New("REDEMPTION_TIMEOUT_MINUTES must be positive")
	}
	RedemptionTimeout = time.Duration(redeemTimeoutMin) * time.Minute

	RedemptionPolicy = getEnvOr("REDEMPTION_POLICY", "BEST_EFFORT")
	if RedemptionPolicy != "BEST_EFFORT" && RedemptionPolicy != "REJECT_ON_INSUFFICIENT" {
		return errors.New("REDEMPTION_POLICY must be BEST_EFFORT or REJECT_ON_INSUFFICIENT, got: " + RedemptionPolicy)
	}

	EmergencySlippageBps, err = getEnvAsInt64Or("EMERGENCY_SLIPPAGE_BPS", 2000)
	if err != nil {
		return err
	}
	if EmergencySlippageBps <= 0 || EmergencySlippageBps > 10000 {
		return errors.New("EMERGENCY_SLIPPAGE_BPS must be in (0,10000]")
	}

	log.Debug().
		Uint64("LocalChainID", LocalChainID).
		Str("RelayEndpoint", RelayEndpoint).
		Str("RedemptionPolicy", RedemptionPolicy).
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

// getEnvOr retrieves a string environment variable with a default.
func getEnvOr(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
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

// getEnvAsInt64Or retrieves an environment variable as an int64 with a
// default when unset. Returns error only when set but unparseable.
func getEnvAsInt64Or(key string, defaultValue int64) (int64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}
