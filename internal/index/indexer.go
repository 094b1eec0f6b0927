package index

import (
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"anchorproto/anchord/internal/carrier"
	"anchorproto/anchord/internal/chain"
	"anchorproto/anchord/internal/protocol"
)

// ErrOutOfOrder is returned when a block arrives at or below the current
// indexing watermark. Blocks must be applied strictly in height order so
// orphan re-resolution stays deterministic.
var ErrOutOfOrder = errors.New("block height at or below indexing watermark")

// Indexer owns all writes to the thread index. Decoding within a block
// runs in parallel (pure functions), persistence is single-writer: one
// SQL transaction per block, committed all-or-nothing.
type Indexer struct {
	store    *Store
	registry *protocol.Registry

	mu sync.Mutex
}

// NewIndexer wires an Indexer over an open store. The registry is only
// consulted by queries for typed display; indexing never needs it.
func NewIndexer(store *Store, registry *protocol.Registry) *Indexer {
	return &Indexer{store: store, registry: registry}
}

// Registry exposes the kind registry for typed body display.
func (ix *Indexer) Registry() *protocol.Registry {
	return ix.registry
}

// decoded pairs a raw payload with its successfully decoded message.
type decoded struct {
	pl  carrier.RawPayload
	msg *protocol.Message
}

// BlockResult summarizes one block's indexing.
type BlockResult struct {
	Height     int64 `json:"height"`
	TxCount    int   `json:"tx_count"`
	Indexed    int   `json:"indexed"`
	Duplicates int   `json:"duplicates"`
	Promoted   int   `json:"promoted"` // orphan anchors re-resolved this block
}

// OnNewBlock runs the full pipeline for one confirmed block: carrier
// extraction and envelope decoding per transaction, then serialized
// persistence of every decoded message followed by the orphan resweep.
// The block commits atomically; on error nothing is applied and the
// caller may retry the same block.
func (ix *Indexer) OnNewBlock(block *chain.Block) (*BlockResult, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	last, err := ix.watermark()
	if err != nil {
		return nil, err
	}
	if block.Height <= last {
		return nil, fmt.Errorf("block %d after block %d: %w", block.Height, last, ErrOutOfOrder)
	}

	msgs := decodeBlock(block)

	tx, err := ix.store.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning block transaction: %w", err)
	}
	defer tx.Rollback()

	res := &BlockResult{Height: block.Height, TxCount: len(block.Transactions)}
	for _, d := range msgs {
		inserted, promoted, err := indexMessage(tx, d)
		if err != nil {
			return nil, fmt.Errorf("indexing message %s:%d: %w", d.pl.Txid, d.pl.Vout, err)
		}
		if inserted {
			res.Indexed++
		} else {
			res.Duplicates++
		}
		res.Promoted += promoted
	}

	if err := setCounter(tx, counterLastHeight, block.Height); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing block %d: %w", block.Height, err)
	}

	log.Info().
		Int64("height", block.Height).
		Int("txs", res.TxCount).
		Int("indexed", res.Indexed).
		Int("promoted", res.Promoted).
		Msg("block indexed")
	return res, nil
}

// decodeBlock extracts and decodes every transaction concurrently,
// returning messages in transaction order. Payloads that are not protocol
// messages or are structurally invalid are dropped here, silently apart
// from a debug log.
func decodeBlock(block *chain.Block) []decoded {
	perTx := make([][]decoded, len(block.Transactions))

	workers := runtime.NumCPU()
	if workers > len(block.Transactions) {
		workers = len(block.Transactions)
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				txn := &block.Transactions[i]
				for _, pl := range carrier.Extract(txn, block.Height, block.Time) {
					msg, err := protocol.Decode(pl.Data)
					if err != nil {
						if !errors.Is(err, protocol.ErrNotAnchorMessage) {
							log.Debug().
								Str("txid", pl.Txid).
								Str("carrier", string(pl.Carrier)).
								Err(err).
								Msg("dropping malformed payload")
						}
						continue
					}
					perTx[i] = append(perTx[i], decoded{pl: pl, msg: msg})
				}
			}
		}()
	}
	for i := range block.Transactions {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var out []decoded
	for _, ds := range perTx {
		out = append(out, ds...)
	}
	return out
}

// indexMessage inserts one decoded message and resolves its anchors, then
// resweeps orphans that could match the new message's prefix. Idempotent:
// a duplicate (txid, vout) is a no-op.
func indexMessage(tx *sql.Tx, d decoded) (inserted bool, promoted int, err error) {
	var exists int
	err = tx.QueryRow(`SELECT 1 FROM messages WHERE txid = ? AND vout = ?`, d.pl.Txid, d.pl.Vout).Scan(&exists)
	if err == nil {
		return false, 0, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, 0, err
	}

	_, err = tx.Exec(`
		INSERT INTO messages (txid, vout, kind, anchor_count, body, carrier, block_height, block_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.pl.Txid, d.pl.Vout, d.msg.Kind, len(d.msg.Anchors), d.msg.Body, string(d.pl.Carrier), d.pl.BlockHeight, d.pl.BlockTime)
	if err != nil {
		return false, 0, fmt.Errorf("inserting message: %w", err)
	}

	if err := bumpCounter(tx, counterTotalMessages, 1); err != nil {
		return false, 0, err
	}
	if err := bumpCounter(tx, kindCounter(d.msg.Kind), 1); err != nil {
		return false, 0, err
	}
	if len(d.msg.Anchors) == 0 {
		err = bumpCounter(tx, counterTotalRoots, 1)
	} else {
		err = bumpCounter(tx, counterTotalReplies, 1)
	}
	if err != nil {
		return false, 0, err
	}

	ref := MessageRef{Txid: d.pl.Txid, Vout: d.pl.Vout}
	for i, a := range d.msg.Anchors {
		if err := indexAnchor(tx, ref, i, a); err != nil {
			return false, 0, err
		}
	}

	promoted, err = resweep(tx, ref)
	if err != nil {
		return false, 0, err
	}
	return true, promoted, nil
}

// indexAnchor resolves and persists one anchor of a newly indexed message.
func indexAnchor(tx *sql.Tx, ref MessageRef, idx int, a protocol.Anchor) error {
	prefix := a.PrefixHex()
	status, candidates, err := resolvePrefix(tx, prefix, a.Vout)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO anchors (txid, vout, idx, prefix, target_vout, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ref.Txid, ref.Vout, idx, prefix, a.Vout, string(status))
	if err != nil {
		return fmt.Errorf("inserting anchor %d: %w", idx, err)
	}
	if err := insertCandidates(tx, ref, idx, candidates); err != nil {
		return err
	}

	if err := bumpCounter(tx, counterTotalAnchors, 1); err != nil {
		return err
	}
	return bumpCounter(tx, statusCounter(status), 1)
}

func insertCandidates(tx *sql.Tx, ref MessageRef, idx int, candidates []MessageRef) error {
	for _, c := range candidates {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO anchor_candidates (txid, vout, idx, target_txid, target_vout)
			VALUES (?, ?, ?, ?, ?)
		`, ref.Txid, ref.Vout, idx, c.Txid, c.Vout)
		if err != nil {
			return fmt.Errorf("inserting candidate %s: %w", c, err)
		}
	}
	return nil
}

// resweep re-evaluates anchors that could match a newly indexed message.
// Orphans whose prefix matches the new carrying txid get a full
// re-resolution; ambiguous anchors gain the new candidate but keep their
// status. Resolved anchors are sticky and never revisited here.
func resweep(tx *sql.Tx, newRef MessageRef) (int, error) {
	myPrefix := newRef.Txid[:chain.PrefixHexLen]

	type orphanAnchor struct {
		ref        MessageRef
		idx        int
		prefix     string
		targetVout uint8
	}
	rows, err := tx.Query(`
		SELECT txid, vout, idx, prefix, target_vout FROM anchors
		WHERE prefix = ? AND status = ?
	`, myPrefix, string(StatusOrphan))
	if err != nil {
		return 0, fmt.Errorf("scanning orphans for resweep: %w", err)
	}
	var orphans []orphanAnchor
	for rows.Next() {
		var o orphanAnchor
		if err := rows.Scan(&o.ref.Txid, &o.ref.Vout, &o.idx, &o.prefix, &o.targetVout); err != nil {
			rows.Close()
			return 0, err
		}
		orphans = append(orphans, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	promoted := 0
	for _, o := range orphans {
		status, candidates, err := resolvePrefix(tx, o.prefix, o.targetVout)
		if err != nil {
			return 0, err
		}
		if status == StatusOrphan {
			continue
		}
		if err := updateAnchorStatus(tx, o.ref, o.idx, StatusOrphan, status, candidates); err != nil {
			return 0, err
		}
		promoted++
	}

	// Ambiguous anchors matching the new message absorb it as a candidate;
	// the classification itself never collapses from a new arrival.
	_, err = tx.Exec(`
		INSERT OR IGNORE INTO anchor_candidates (txid, vout, idx, target_txid, target_vout)
		SELECT a.txid, a.vout, a.idx, ?, ?
		FROM anchors a
		WHERE a.prefix = ? AND a.status = ? AND a.target_vout = ?
	`, newRef.Txid, newRef.Vout, myPrefix, string(StatusAmbiguous), newRef.Vout)
	if err != nil {
		return 0, fmt.Errorf("extending ambiguous candidates: %w", err)
	}

	return promoted, nil
}

// updateAnchorStatus moves an anchor between statuses, replacing its
// candidate set and keeping the status counters in step.
func updateAnchorStatus(tx *sql.Tx, ref MessageRef, idx int, from, to Status, candidates []MessageRef) error {
	_, err := tx.Exec(`
		UPDATE anchors SET status = ? WHERE txid = ? AND vout = ? AND idx = ?
	`, string(to), ref.Txid, ref.Vout, idx)
	if err != nil {
		return fmt.Errorf("updating anchor status: %w", err)
	}
	_, err = tx.Exec(`
		DELETE FROM anchor_candidates WHERE txid = ? AND vout = ? AND idx = ?
	`, ref.Txid, ref.Vout, idx)
	if err != nil {
		return fmt.Errorf("clearing anchor candidates: %w", err)
	}
	if err := insertCandidates(tx, ref, idx, candidates); err != nil {
		return err
	}
	if err := bumpCounter(tx, statusCounter(from), -1); err != nil {
		return err
	}
	return bumpCounter(tx, statusCounter(to), 1)
}

func (ix *Indexer) watermark() (int64, error) {
	var last int64 = -1
	err := ix.store.conn.QueryRow(`SELECT value FROM counters WHERE name = ?`, counterLastHeight).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reading indexing watermark: %w", err)
	}
	return last, nil
}
