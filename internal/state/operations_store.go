// ./internal/state/operations_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vaultmesh/cvc/internal/types"
)

// SaveOperation upserts an operation row. The coordinator calls this on every
// status change so the audit trail always reflects the latest state.
func SaveOperation(op types.CrossChainOperation) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation %s: %w", op.ID, err)
	}

	stmt := `
		INSERT INTO cross_chain_operations (
			op_id, seq, fund_id, op_type, status, source_chain, target_chain,
			amount, op_user, correlation_id, failure_reason, created_at, deadline, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (op_id) DO UPDATE
		SET status = EXCLUDED.status,
			correlation_id = EXCLUDED.correlation_id,
			failure_reason = EXCLUDED.failure_reason,
			payload = EXCLUDED.payload;`
	_, err = DB.Exec(stmt,
		op.ID, op.Seq, op.FundID, string(op.Type), string(op.Status),
		uint64(op.SourceChain), uint64(op.TargetChain),
		op.Amount.String(), op.User, op.CorrelationID, op.FailureReason,
		op.Timestamp, op.Deadline, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert operation %s: %w", op.ID, err)
	}
	return nil
}

// GetOperation loads one operation by id from the audit store.
func GetOperation(opID string) (*types.CrossChainOperation, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var payload []byte
	err := DB.QueryRow(`SELECT payload FROM cross_chain_operations WHERE op_id = $1;`, opID).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("operation %s not found", opID)
		}
		return nil, fmt.Errorf("failed to query operation %s: %w", opID, err)
	}

	var op types.CrossChainOperation
	if err := json.Unmarshal(payload, &op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation %s: %w", opID, err)
	}
	return &op, nil
}

// ListOpenOperations returns every non-terminal operation, used by the
// startup recovery pass.
func ListOpenOperations() ([]types.CrossChainOperation, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT payload FROM cross_chain_operations
		WHERE status IN ('PENDING', 'EXECUTING')
		ORDER BY seq ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open operations: %w", err)
	}
	defer rows.Close()

	return scanOperationRows(rows)
}

// ListRecentOperations returns the most recent operations for a fund, newest
// first. An empty fund id returns operations across all funds.
func ListRecentOperations(fundID string, limit int) ([]types.CrossChainOperation, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var (
		rows *sql.Rows
		err  error
	)
	if fundID == "" {
		rows, err = DB.Query(`
			SELECT payload FROM cross_chain_operations
			ORDER BY seq DESC LIMIT $1;`, limit)
	} else {
		rows, err = DB.Query(`
			SELECT payload FROM cross_chain_operations
			WHERE fund_id = $1
			ORDER BY seq DESC LIMIT $2;`, fundID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recent operations: %w", err)
	}
	defer rows.Close()

	return scanOperationRows(rows)
}

func scanOperationRows(rows *sql.Rows) ([]types.CrossChainOperation, error) {
	var ops []types.CrossChainOperation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			log.Error().Err(err).Msg("Failed to scan operation row")
			continue
		}
		var op types.CrossChainOperation
		if err := json.Unmarshal(payload, &op); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal operation payload")
			continue
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during operation row iteration: %w", err)
	}
	return ops, nil
}
