package index

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"anchorproto/anchord/internal/chain"
)

// ReorgResult summarizes one reorg application.
type ReorgResult struct {
	MessagesRemoved int   `json:"messages_removed"`
	AnchorsRevised  int   `json:"anchors_revised"`
	Watermark       int64 `json:"watermark"`
}

// OnReorg removes every message carried by the given no-longer-confirmed
// transactions and re-resolves the anchors that pointed at them. Applied
// atomically: readers never see a removed message still present with its
// children already unlinked, or the reverse. The indexing watermark drops
// below the lowest removed height so replacement blocks can be indexed.
func (ix *Indexer) OnReorg(removedTxids []string) (*ReorgResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	txids := make([]string, 0, len(removedTxids))
	for _, raw := range removedTxids {
		txid, err := chain.NormalizeTxid(raw)
		if err != nil {
			return nil, err
		}
		txids = append(txids, txid)
	}

	tx, err := ix.store.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning reorg transaction: %w", err)
	}
	defer tx.Rollback()

	res := &ReorgResult{}
	var minRemovedHeight int64 = -1

	// Anchors from surviving messages that held a removed message as a
	// candidate. Whole transactions disappear in a reorg, so matching on
	// target_txid alone is sufficient.
	type dependent struct {
		ref        MessageRef
		idx        int
		prefix     string
		targetVout uint8
		status     Status
	}
	dependents := make(map[string]dependent)
	removed := make(map[string]bool, len(txids))
	for _, txid := range txids {
		removed[txid] = true
	}

	for _, txid := range txids {
		rows, err := tx.Query(`
			SELECT a.txid, a.vout, a.idx, a.prefix, a.target_vout, a.status
			FROM anchors a
			JOIN anchor_candidates c ON c.txid = a.txid AND c.vout = a.vout AND c.idx = a.idx
			WHERE c.target_txid = ?
		`, txid)
		if err != nil {
			return nil, fmt.Errorf("finding dependent anchors: %w", err)
		}
		for rows.Next() {
			var d dependent
			var status string
			if err := rows.Scan(&d.ref.Txid, &d.ref.Vout, &d.idx, &d.prefix, &d.targetVout, &status); err != nil {
				rows.Close()
				return nil, err
			}
			d.status = Status(status)
			if removed[d.ref.Txid] {
				continue // going away itself
			}
			dependents[fmt.Sprintf("%s:%d:%d", d.ref.Txid, d.ref.Vout, d.idx)] = d
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	// Remove the messages, adjusting counters before the cascade deletes
	// their anchor rows.
	for _, txid := range txids {
		rows, err := tx.Query(`
			SELECT vout, kind, anchor_count, block_height FROM messages WHERE txid = ?
		`, txid)
		if err != nil {
			return nil, fmt.Errorf("loading removed messages: %w", err)
		}
		type gone struct {
			vout        uint8
			kind        uint8
			anchorCount int
			height      int64
		}
		var goners []gone
		for rows.Next() {
			var g gone
			if err := rows.Scan(&g.vout, &g.kind, &g.anchorCount, &g.height); err != nil {
				rows.Close()
				return nil, err
			}
			goners = append(goners, g)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for _, g := range goners {
			if err := bumpCounter(tx, counterTotalMessages, -1); err != nil {
				return nil, err
			}
			if err := bumpCounter(tx, kindCounter(g.kind), -1); err != nil {
				return nil, err
			}
			rootOrReply := counterTotalRoots
			if g.anchorCount > 0 {
				rootOrReply = counterTotalReplies
			}
			if err := bumpCounter(tx, rootOrReply, -1); err != nil {
				return nil, err
			}
			if minRemovedHeight < 0 || g.height < minRemovedHeight {
				minRemovedHeight = g.height
			}
			res.MessagesRemoved++
		}

		// Per-status anchor counters for the anchors about to cascade.
		srows, err := tx.Query(`
			SELECT status, COUNT(*) FROM anchors WHERE txid = ? GROUP BY status
		`, txid)
		if err != nil {
			return nil, fmt.Errorf("counting removed anchors: %w", err)
		}
		for srows.Next() {
			var status string
			var n int64
			if err := srows.Scan(&status, &n); err != nil {
				srows.Close()
				return nil, err
			}
			if err := bumpCounter(tx, statusCounter(Status(status)), -n); err != nil {
				srows.Close()
				return nil, err
			}
			if err := bumpCounter(tx, counterTotalAnchors, -n); err != nil {
				srows.Close()
				return nil, err
			}
		}
		srows.Close()
		if err := srows.Err(); err != nil {
			return nil, err
		}

		// Explicit bottom-up delete; the pooled connections make FK
		// cascades unreliable to lean on.
		if _, err := tx.Exec(`DELETE FROM anchor_candidates WHERE txid = ?`, txid); err != nil {
			return nil, fmt.Errorf("removing candidates of %s: %w", txid, err)
		}
		if _, err := tx.Exec(`DELETE FROM anchors WHERE txid = ?`, txid); err != nil {
			return nil, fmt.Errorf("removing anchors of %s: %w", txid, err)
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE txid = ?`, txid); err != nil {
			return nil, fmt.Errorf("removing messages of %s: %w", txid, err)
		}
	}

	// Re-resolve every surviving anchor that referenced a removed target.
	// The outcome may be Orphan, a different Resolved target, or a smaller
	// (possibly still) Ambiguous set.
	for _, d := range dependents {
		status, candidates, err := resolvePrefix(tx, d.prefix, d.targetVout)
		if err != nil {
			return nil, err
		}
		if err := updateAnchorStatus(tx, d.ref, d.idx, d.status, status, candidates); err != nil {
			return nil, err
		}
		res.AnchorsRevised++
	}

	last, err := getCounter(tx, counterLastHeight)
	if err != nil {
		return nil, err
	}
	res.Watermark = last
	if minRemovedHeight >= 0 && minRemovedHeight-1 < last {
		if err := setCounter(tx, counterLastHeight, minRemovedHeight-1); err != nil {
			return nil, err
		}
		res.Watermark = minRemovedHeight - 1
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reorg: %w", err)
	}

	log.Info().
		Int("messages_removed", res.MessagesRemoved).
		Int("anchors_revised", res.AnchorsRevised).
		Msg("reorg applied")
	return res, nil
}
