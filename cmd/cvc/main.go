package main

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/vaultmesh/cvc/internal/analyzer"
	"github.com/vaultmesh/cvc/internal/config"
	"github.com/vaultmesh/cvc/internal/coordinator"
	"github.com/vaultmesh/cvc/internal/logger"
	"github.com/vaultmesh/cvc/internal/registry"
	"github.com/vaultmesh/cvc/internal/router"
	"github.com/vaultmesh/cvc/internal/state"
	"github.com/vaultmesh/cvc/internal/transport"
	"github.com/vaultmesh/cvc/internal/types"
	"github.com/vaultmesh/cvc/internal/vault"
	"github.com/vaultmesh/cvc/internal/web"
)

const EXPIRY_SWEEP_INTERVAL = 1 * time.Minute

// main is the entry point for the cross-chain vault coordinator.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var logSinks []io.Writer
	var logFileErr error
	logFile := os.Getenv("LOG_FILE")
	if logFile != "" {
		fw, err := logger.FileWriter(logFile)
		if err != nil {
			logFileErr = err
		} else {
			logSinks = append(logSinks, fw)
		}
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"), logSinks...)
	if logFileErr != nil {
		log.Warn().Err(logFileErr).Str("path", logFile).Msg("Log file unavailable, console only")
	}
	log.Info().Msg("CVC Coordinator Starting...")

	// Initialize Database Connection (audit trail; optional)
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if dbCfg.Host == "" {
		log.Warn().Msg("DB_HOST not set. Running without a persistence layer; state will not survive restarts.")
	} else {
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	}

	// --- 2. External Connections ---
	relayConn, err := transport.Dial(config.RelayEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Relay connection error")
	}
	defer relayConn.Close()
	relay, err := transport.NewRelayClient(relayConn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create relay client")
	}
	log.Info().Str("endpoint", config.RelayEndpoint).Msg("Relay connected")

	gatewayConn, err := vault.Dial(config.NodeGRPC)
	if err != nil {
		log.Fatal().Err(err).Msg("Vault gateway connection error")
	}
	defer gatewayConn.Close()
	vaults, err := vault.NewGatewayProvider(gatewayConn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault gateway provider")
	}
	log.Info().Str("endpoint", config.NodeGRPC).Msg("Vault gateway connected")

	// --- 3. Core Component Wiring ---
	reg := registry.NewRegistry()

	coord, err := coordinator.New(coordinator.Config{
		Registry:         reg,
		Vaults:           vaults,
		Messenger:        relay,
		LocalChainID:     types.ChainID(config.LocalChainID),
		HoldingAddress:   config.HoldingAddress,
		OperationTimeout: config.OperationTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create coordinator")
	}

	an, err := analyzer.New(reg, coord)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create analyzer")
	}

	rt, err := router.New(router.Config{
		Registry:             reg,
		Venues:               relay,
		Ledger:               relay,
		Policy:               types.RedemptionPolicy(config.RedemptionPolicy),
		EmergencySlippageBps: config.EmergencySlippageBps,
		LocalChainID:         types.ChainID(config.LocalChainID),
		RedemptionTimeout:    config.RedemptionTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create router")
	}

	// --- 4. Recovery Pass ---
	if state.Ready() {
		recoverState(reg, coord, rt)
	}

	// --- 5. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, reg, coord, an, rt)
	log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting CVC API server")

	// --- 6. Expiry Sweep Loop ---
	go func() {
		ticker := time.NewTicker(EXPIRY_SWEEP_INTERVAL)
		defer ticker.Stop()
		for now := range ticker.C {
			coord.ReconcileExpired(now)
		}
	}()

	if err := webServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Web server failed")
	}
}

// recoverState reseeds the in-memory components from the audit store after a
// restart. Operations past their deadline are expired immediately; the router
// fails anything it cannot prove safe to resume.
func recoverState(reg *registry.Registry, coord *coordinator.Coordinator, rt *router.Router) {
	clusters, err := state.LoadClusters()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load persisted clusters")
	} else {
		for _, cluster := range clusters {
			reg.Restore(cluster)
		}
		log.Info().Int("count", len(clusters)).Msg("Clusters restored")
	}

	ops, err := state.ListOpenOperations()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load open operations")
	} else {
		coord.Restore(ops)
		expired := coord.ReconcileExpired(time.Now())
		log.Info().Int("restored", len(ops)).Int("expired", expired).Msg("Operations restored")
	}

	reqs, err := state.ListOpenRedemptions()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load open redemptions")
	} else {
		rt.Restore(reqs)
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
