// ./internal/state/redemptions_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vaultmesh/cvc/internal/types"
)

// SaveRedemption upserts a redemption request row including its routes and
// itemized liquidations.
func SaveRedemption(req types.RedemptionRequest) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal redemption %s: %w", req.ID, err)
	}

	stmt := `
		INSERT INTO redemption_requests (
			request_id, fund_id, requester, status, strategy,
			token_amount, total_returned, failure_reason, payload, created_at, deadline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (request_id) DO UPDATE
		SET status = EXCLUDED.status,
			total_returned = EXCLUDED.total_returned,
			failure_reason = EXCLUDED.failure_reason,
			payload = EXCLUDED.payload;`
	_, err = DB.Exec(stmt,
		req.ID, req.FundID, req.Requester, string(req.Status), string(req.Strategy),
		req.TokenAmount.String(), req.TotalReturned.String(), req.FailureReason,
		payload, req.CreatedAt, req.Deadline,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert redemption %s: %w", req.ID, err)
	}
	return nil
}

// GetRedemption loads one redemption request by id from the audit store.
func GetRedemption(requestID string) (*types.RedemptionRequest, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var payload []byte
	err := DB.QueryRow(`SELECT payload FROM redemption_requests WHERE request_id = $1;`, requestID).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("redemption %s not found", requestID)
		}
		return nil, fmt.Errorf("failed to query redemption %s: %w", requestID, err)
	}

	var req types.RedemptionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal redemption %s: %w", requestID, err)
	}
	return &req, nil
}

// ListOpenRedemptions returns every non-terminal redemption request, used by
// the startup recovery pass.
func ListOpenRedemptions() ([]types.RedemptionRequest, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT payload FROM redemption_requests
		WHERE status IN ('PENDING', 'VALIDATING', 'ROUTING', 'APPROVED', 'EXECUTING')
		ORDER BY created_at ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open redemptions: %w", err)
	}
	defer rows.Close()

	var reqs []types.RedemptionRequest
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			log.Error().Err(err).Msg("Failed to scan redemption row")
			continue
		}
		var req types.RedemptionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal redemption payload")
			continue
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during redemption row iteration: %w", err)
	}
	return reqs, nil
}
