package index

import (
	"database/sql"
	"fmt"
)

// resolvePrefix classifies an anchor against the currently indexed
// messages: every message whose carrying txid begins with the 16-hex
// prefix and whose carrying vout equals the anchored vout is a candidate.
// 0 candidates is Orphan, 1 is Resolved, 2+ is Ambiguous. Collisions are
// reported, never tie-broken.
//
// Candidates come back ordered by (block_height, txid, vout) so the
// classification is deterministic and recomputable from persisted state.
func resolvePrefix(tx *sql.Tx, prefix string, targetVout uint8) (Status, []MessageRef, error) {
	rows, err := tx.Query(`
		SELECT txid, vout FROM messages
		WHERE txid LIKE ? || '%' AND vout = ?
		ORDER BY block_height, txid, vout
	`, prefix, targetVout)
	if err != nil {
		return "", nil, fmt.Errorf("scanning anchor candidates: %w", err)
	}
	defer rows.Close()

	var candidates []MessageRef
	for rows.Next() {
		var ref MessageRef
		if err := rows.Scan(&ref.Txid, &ref.Vout); err != nil {
			return "", nil, err
		}
		candidates = append(candidates, ref)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}

	switch len(candidates) {
	case 0:
		return StatusOrphan, nil, nil
	case 1:
		return StatusResolved, candidates, nil
	default:
		return StatusAmbiguous, candidates, nil
	}
}
