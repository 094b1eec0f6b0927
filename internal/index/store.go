package index

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding the thread index.
type Store struct {
	conn *sql.DB
	Path string
}

// schema holds the three persistent indices the engine needs (messages
// by (txid, vout), anchors with their resolution status keyed by prefix,
// and candidate links doubling as the reverse child index) plus the
// incrementally-maintained counters.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
	txid         TEXT    NOT NULL,
	vout         INTEGER NOT NULL,
	kind         INTEGER NOT NULL,
	anchor_count INTEGER NOT NULL,
	body         BLOB    NOT NULL,
	carrier      TEXT    NOT NULL,
	block_height INTEGER NOT NULL,
	block_time   INTEGER NOT NULL,
	PRIMARY KEY (txid, vout)
);

CREATE TABLE IF NOT EXISTS anchors (
	txid        TEXT    NOT NULL,
	vout        INTEGER NOT NULL,
	idx         INTEGER NOT NULL,
	prefix      TEXT    NOT NULL,
	target_vout INTEGER NOT NULL,
	status      TEXT    NOT NULL,
	PRIMARY KEY (txid, vout, idx),
	FOREIGN KEY (txid, vout) REFERENCES messages(txid, vout) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_anchors_prefix_status ON anchors(prefix, status);

CREATE TABLE IF NOT EXISTS anchor_candidates (
	txid        TEXT    NOT NULL,
	vout        INTEGER NOT NULL,
	idx         INTEGER NOT NULL,
	target_txid TEXT    NOT NULL,
	target_vout INTEGER NOT NULL,
	PRIMARY KEY (txid, vout, idx, target_txid, target_vout),
	FOREIGN KEY (txid, vout, idx) REFERENCES anchors(txid, vout, idx) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_candidates_target ON anchor_candidates(target_txid, target_vout);

CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// OpenStore opens (and if needed initializes) the index database with WAL
// mode and foreign keys enabled. WAL gives readers snapshot isolation
// while the single writer commits block transactions.
func OpenStore(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{conn: conn, Path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}
