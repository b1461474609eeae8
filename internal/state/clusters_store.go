// ./internal/state/clusters_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vaultmesh/cvc/internal/types"
)

// SaveCluster upserts the full cluster document keyed by fund id.
func SaveCluster(cluster types.VaultCluster) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	doc, err := json.Marshal(cluster)
	if err != nil {
		return fmt.Errorf("failed to marshal cluster %s: %w", cluster.FundID, err)
	}

	stmt := `
		INSERT INTO vault_clusters (fund_id, cluster, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (fund_id) DO UPDATE
		SET cluster = EXCLUDED.cluster, updated_at = CURRENT_TIMESTAMP;`
	if _, err := DB.Exec(stmt, cluster.FundID, doc); err != nil {
		return fmt.Errorf("failed to upsert cluster %s: %w", cluster.FundID, err)
	}
	return nil
}

// LoadClusters returns every persisted cluster, used to reseed the registry
// on startup.
func LoadClusters() ([]types.VaultCluster, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`SELECT cluster FROM vault_clusters ORDER BY fund_id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []types.VaultCluster
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			log.Error().Err(err).Msg("Failed to scan cluster row")
			continue
		}
		var cluster types.VaultCluster
		if err := json.Unmarshal(doc, &cluster); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal cluster document")
			continue
		}
		clusters = append(clusters, cluster)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during cluster row iteration: %w", err)
	}

	log.Info().Int("count", len(clusters)).Msg("Loaded persisted clusters")
	return clusters, nil
}
