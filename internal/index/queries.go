package index

import (
	"database/sql"
	"errors"
	"fmt"

	"anchorproto/anchord/internal/carrier"
	"anchorproto/anchord/internal/chain"
)

// ErrMessageNotFound is returned by lookups for unindexed references.
var ErrMessageNotFound = errors.New("message not found")

// GetMessage returns one indexed message with the current resolution of
// each of its anchors, or ErrMessageNotFound.
func (ix *Indexer) GetMessage(ref MessageRef) (*StoredMessage, []AnchorState, error) {
	tx, err := ix.store.conn.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("beginning read: %w", err)
	}
	defer tx.Rollback()

	msg, err := loadMessage(tx, ref)
	if err != nil {
		return nil, nil, err
	}
	anchors, err := loadAnchors(tx, ref)
	if err != nil {
		return nil, nil, err
	}
	return msg, anchors, nil
}

func loadMessage(tx *sql.Tx, ref MessageRef) (*StoredMessage, error) {
	m := &StoredMessage{Ref: ref}
	var carrierType string
	err := tx.QueryRow(`
		SELECT kind, anchor_count, body, carrier, block_height, block_time
		FROM messages WHERE txid = ? AND vout = ?
	`, ref.Txid, ref.Vout).Scan(&m.Kind, &m.AnchorCount, &m.Body, &carrierType, &m.BlockHeight, &m.BlockTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", ref, ErrMessageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", ref, err)
	}
	m.Carrier = carrier.Type(carrierType)
	return m, nil
}

func loadAnchors(tx *sql.Tx, ref MessageRef) ([]AnchorState, error) {
	rows, err := tx.Query(`
		SELECT idx, prefix, target_vout, status FROM anchors
		WHERE txid = ? AND vout = ? ORDER BY idx
	`, ref.Txid, ref.Vout)
	if err != nil {
		return nil, fmt.Errorf("loading anchors of %s: %w", ref, err)
	}
	var anchors []AnchorState
	for rows.Next() {
		var a AnchorState
		var status string
		if err := rows.Scan(&a.Index, &a.Prefix, &a.TargetVout, &status); err != nil {
			rows.Close()
			return nil, err
		}
		a.Status = Status(status)
		anchors = append(anchors, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range anchors {
		crows, err := tx.Query(`
			SELECT c.target_txid, c.target_vout
			FROM anchor_candidates c
			JOIN messages m ON m.txid = c.target_txid AND m.vout = c.target_vout
			WHERE c.txid = ? AND c.vout = ? AND c.idx = ?
			ORDER BY m.block_height, c.target_txid, c.target_vout
		`, ref.Txid, ref.Vout, anchors[i].Index)
		if err != nil {
			return nil, fmt.Errorf("loading candidates of %s anchor %d: %w", ref, anchors[i].Index, err)
		}
		for crows.Next() {
			var c MessageRef
			if err := crows.Scan(&c.Txid, &c.Vout); err != nil {
				crows.Close()
				return nil, err
			}
			anchors[i].Candidates = append(anchors[i].Candidates, c)
		}
		crows.Close()
		if err := crows.Err(); err != nil {
			return nil, err
		}
	}
	return anchors, nil
}

// FindByTxidPrefix returns indexed messages whose carrying txid starts
// with the given hex prefix, ordered by confirmation then identity.
func (ix *Indexer) FindByTxidPrefix(prefix string, limit int) ([]StoredMessage, error) {
	p, err := chain.NormalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := ix.store.conn.Query(`
		SELECT txid, vout, kind, anchor_count, body, carrier, block_height, block_time
		FROM messages WHERE txid LIKE ? || '%'
		ORDER BY block_height, txid, vout LIMIT ?
	`, p, limit)
	if err != nil {
		return nil, fmt.Errorf("searching by prefix: %w", err)
	}
	defer rows.Close()

	var msgs []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var carrierType string
		if err := rows.Scan(&m.Ref.Txid, &m.Ref.Vout, &m.Kind, &m.AnchorCount, &m.Body, &carrierType, &m.BlockHeight, &m.BlockTime); err != nil {
			return nil, err
		}
		m.Carrier = carrier.Type(carrierType)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetThread walks the descendants of a message breadth-first over the
// reverse child index. A visited set bounds the walk, so anchor cycles
// (legal but degenerate) terminate. Children at each node come back in
// (block_height, txid, vout) order, making traversal deterministic. The
// root itself is not included.
func (ix *Indexer) GetThread(root MessageRef, limit int) ([]ThreadEntry, error) {
	if limit <= 0 {
		limit = 10_000
	}

	tx, err := ix.store.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning thread read: %w", err)
	}
	defer tx.Rollback()

	if _, err := loadMessage(tx, root); err != nil {
		return nil, err
	}

	visited := map[MessageRef]bool{root: true}
	type queued struct {
		ref   MessageRef
		depth int
	}
	queue := []queued{{ref: root}}

	var entries []ThreadEntry
	for len(queue) > 0 && len(entries) < limit {
		cur := queue[0]
		queue = queue[1:]

		children, err := loadChildren(tx, cur.ref)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.Ref] {
				continue
			}
			visited[child.Ref] = true
			child.Depth = cur.depth + 1
			entries = append(entries, child)
			queue = append(queue, queued{ref: child.Ref, depth: child.Depth})
			if len(entries) >= limit {
				break
			}
		}
	}
	return entries, nil
}

// loadChildren lists messages holding this ref as an anchor candidate.
func loadChildren(tx *sql.Tx, ref MessageRef) ([]ThreadEntry, error) {
	rows, err := tx.Query(`
		SELECT DISTINCT m.txid, m.vout, m.kind, m.block_height
		FROM anchor_candidates c
		JOIN messages m ON m.txid = c.txid AND m.vout = c.vout
		WHERE c.target_txid = ? AND c.target_vout = ?
		ORDER BY m.block_height, m.txid, m.vout
	`, ref.Txid, ref.Vout)
	if err != nil {
		return nil, fmt.Errorf("loading children of %s: %w", ref, err)
	}
	defer rows.Close()

	var children []ThreadEntry
	for rows.Next() {
		var e ThreadEntry
		if err := rows.Scan(&e.Ref.Txid, &e.Ref.Vout, &e.Kind, &e.BlockHeight); err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return children, rows.Err()
}
