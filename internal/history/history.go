// Package history keeps an append-only ledger of install attempts in a
// local SQLite database. The manifest remains the only source of truth for
// recorded versions; the ledger answers "what happened and when".
//
// Usage:
//
//	ledger, err := history.Open(path)
//	if err != nil { ... }
//	defer ledger.Close()
//	ledger.Record(ctx, history.Entry{Item: "rg", Status: "installed", Version: "14.1.0"})
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Error variables for history errors
var (
	// ErrHistoryOpen is returned when the database cannot be opened or migrated
	ErrHistoryOpen = errors.New("failed to open history database")
	// ErrHistoryWrite is returned when an entry cannot be stored
	ErrHistoryWrite = errors.New("failed to write history entry")
)

// MemoryPath opens a private in-memory ledger
const MemoryPath = ":memory:"

// DefaultBusyTimeout is the SQLite busy_timeout in milliseconds
const DefaultBusyTimeout = 5000

const schema = `
CREATE TABLE IF NOT EXISTS installs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	item             TEXT    NOT NULL,
	status           TEXT    NOT NULL,
	version          TEXT    NOT NULL DEFAULT '',
	previous_version TEXT    NOT NULL DEFAULT '',
	asset_url        TEXT    NOT NULL DEFAULT '',
	path             TEXT    NOT NULL DEFAULT '',
	error            TEXT    NOT NULL DEFAULT '',
	recorded_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_installs_item ON installs(item, id);
`

// Entry is one recorded install attempt.
type Entry struct {
	ID              int64
	Item            string
	Status          string
	Version         string
	PreviousVersion string
	AssetURL        string
	Path            string
	Error           string
	At              time.Time
}

// Ledger stores install attempts.
type Ledger struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// LedgerOption is a functional option for configuring Ledger
type LedgerOption func(*Ledger)

// WithNowFunc sets the clock used for entries without a timestamp
func WithNowFunc(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowFunc = fn
	}
}

// Open opens or creates the ledger at path, creating parent directories.
// Pass MemoryPath for a throwaway ledger.
func Open(path string, opts ...LedgerOption) (*Ledger, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("%w: mkdir: %v", ErrHistoryOpen, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryOpen, err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", DefaultBusyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrHistoryOpen, p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", ErrHistoryOpen, err)
	}

	l := &Ledger{db: db, nowFunc: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record appends an entry. A zero At is stamped with the current time.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = l.nowFunc()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO installs (item, status, version, previous_version, asset_url, path, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Item, e.Status, e.Version, e.PreviousVersion, e.AssetURL, e.Path, e.Error, e.At.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHistoryWrite, err)
	}
	return nil
}

// List returns the newest entries first. An empty item lists every item;
// a limit of zero or less returns everything.
func (l *Ledger) List(ctx context.Context, item string, limit int) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if item != "" {
		where = append(where, "item = ?")
		args = append(args, item)
	}

	query := `SELECT id, item, status, version, previous_version, asset_url, path, error, recorded_at FROM installs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			at int64
		)
		if err := rows.Scan(&e.ID, &e.Item, &e.Status, &e.Version, &e.PreviousVersion,
			&e.AssetURL, &e.Path, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest keep entries of every item and returns
// the number of rows removed.
func (l *Ledger) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM installs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY item ORDER BY id DESC) AS rn FROM installs
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", ErrHistoryWrite, err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}
