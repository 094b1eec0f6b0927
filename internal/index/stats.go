package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Counter names. Per-kind counts use the kind_<n> form.
const (
	counterTotalMessages    = "total_messages"
	counterTotalRoots       = "total_roots"
	counterTotalReplies     = "total_replies"
	counterTotalAnchors     = "total_anchors"
	counterResolvedAnchors  = "resolved_anchors"
	counterOrphanAnchors    = "orphan_anchors"
	counterAmbiguousAnchors = "ambiguous_anchors"
	counterLastHeight       = "last_indexed_block_height"
)

func kindCounter(kind uint8) string {
	return fmt.Sprintf("kind_%d", kind)
}

func statusCounter(s Status) string {
	switch s {
	case StatusResolved:
		return counterResolvedAnchors
	case StatusOrphan:
		return counterOrphanAnchors
	default:
		return counterAmbiguousAnchors
	}
}

// execer is satisfied by both *sql.Tx and *sql.DB.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func bumpCounter(q execer, name string, delta int64) error {
	if delta == 0 {
		return nil
	}
	_, err := q.Exec(`
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value
	`, name, delta)
	if err != nil {
		return fmt.Errorf("bumping counter %s: %w", name, err)
	}
	return nil
}

func setCounter(q execer, name string, value int64) error {
	_, err := q.Exec(`
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("setting counter %s: %w", name, err)
	}
	return nil
}

func getCounter(q execer, name string) (int64, error) {
	var v int64
	err := q.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if name == counterLastHeight {
			return -1, nil
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter %s: %w", name, err)
	}
	return v, nil
}

// Stats is a read-only snapshot of the aggregator's counters.
type Stats struct {
	TotalMessages    int64            `json:"total_messages"`
	TotalRoots       int64            `json:"total_roots"`
	TotalReplies     int64            `json:"total_replies"`
	TotalAnchors     int64            `json:"total_anchors"`
	ResolvedAnchors  int64            `json:"resolved_anchors"`
	OrphanAnchors    int64            `json:"orphan_anchors"`
	AmbiguousAnchors int64            `json:"ambiguous_anchors"`
	PerKind          map[uint8]int64 `json:"per_kind"`
	LastIndexedBlock int64           `json:"last_indexed_block_height"`
}

// Stats returns a consistent snapshot of all counters.
func (ix *Indexer) Stats() (*Stats, error) {
	tx, err := ix.store.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning stats read: %w", err)
	}
	defer tx.Rollback()
	return readStats(tx)
}

func readStats(tx *sql.Tx) (*Stats, error) {
	s := &Stats{PerKind: make(map[uint8]int64), LastIndexedBlock: -1}

	rows, err := tx.Query(`SELECT name, value FROM counters`)
	if err != nil {
		return nil, fmt.Errorf("reading counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		switch name {
		case counterTotalMessages:
			s.TotalMessages = value
		case counterTotalRoots:
			s.TotalRoots = value
		case counterTotalReplies:
			s.TotalReplies = value
		case counterTotalAnchors:
			s.TotalAnchors = value
		case counterResolvedAnchors:
			s.ResolvedAnchors = value
		case counterOrphanAnchors:
			s.OrphanAnchors = value
		case counterAmbiguousAnchors:
			s.AmbiguousAnchors = value
		case counterLastHeight:
			s.LastIndexedBlock = value
		default:
			if kindStr, ok := strings.CutPrefix(name, "kind_"); ok {
				k, err := strconv.ParseUint(kindStr, 10, 8)
				if err == nil && value != 0 {
					s.PerKind[uint8(k)] = value
				}
			}
		}
	}
	return s, rows.Err()
}

// Recount recomputes every counter from the base tables. The incremental
// counters must always agree with this; tests assert it after every
// mutation pattern.
func (ix *Indexer) Recount() (*Stats, error) {
	tx, err := ix.store.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning recount: %w", err)
	}
	defer tx.Rollback()

	s := &Stats{PerKind: make(map[uint8]int64)}

	err = tx.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN anchor_count = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN anchor_count > 0 THEN 1 ELSE 0 END), 0)
		FROM messages
	`).Scan(&s.TotalMessages, &s.TotalRoots, &s.TotalReplies)
	if err != nil {
		return nil, fmt.Errorf("recounting messages: %w", err)
	}

	rows, err := tx.Query(`SELECT status, COUNT(*) FROM anchors GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("recounting anchors: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.TotalAnchors += n
		switch Status(status) {
		case StatusResolved:
			s.ResolvedAnchors = n
		case StatusOrphan:
			s.OrphanAnchors = n
		case StatusAmbiguous:
			s.AmbiguousAnchors = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	krows, err := tx.Query(`SELECT kind, COUNT(*) FROM messages GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("recounting kinds: %w", err)
	}
	defer krows.Close()
	for krows.Next() {
		var kind uint8
		var n int64
		if err := krows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		s.PerKind[kind] = n
	}
	if err := krows.Err(); err != nil {
		return nil, err
	}

	s.LastIndexedBlock, err = getCounter(tx, counterLastHeight)
	return s, err
}
