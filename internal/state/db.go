// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool. Persistence is an audit trail, not
// the source of truth: callers guard writes with Ready() and carry on when no
// database is configured.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
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

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// Ready reports whether a database is configured and usable.
func Ready() bool {
	return DB != nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vault_clusters (
			fund_id TEXT PRIMARY KEY,
			cluster JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS cross_chain_operations (
			op_id TEXT PRIMARY KEY,
			seq BIGINT NOT NULL,
			fund_id TEXT NOT NULL,
			op_type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			source_chain BIGINT NOT NULL,
			target_chain BIGINT NOT NULL,
			amount NUMERIC(40, 0) NOT NULL,
			op_user TEXT,
			correlation_id TEXT,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			deadline TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_operations_fund ON cross_chain_operations(fund_id, seq DESC);
		CREATE INDEX IF NOT EXISTS idx_operations_status ON cross_chain_operations(status);
		CREATE INDEX IF NOT EXISTS idx_operations_correlation ON cross_chain_operations(correlation_id);

		CREATE TABLE IF NOT EXISTS redemption_requests (
			request_id TEXT PRIMARY KEY,
			fund_id TEXT NOT NULL,
			requester TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			strategy VARCHAR(20) NOT NULL,
			token_amount NUMERIC(40, 0) NOT NULL,
			total_returned NUMERIC(40, 0) NOT NULL,
			failure_reason TEXT,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			deadline TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_redemptions_fund ON redemption_requests(fund_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_redemptions_status ON redemption_requests(status);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
