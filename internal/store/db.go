// Package store provides SQLite-backed delivery history.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps an SQLite connection for delivery history.
type DB struct {
	db *sql.DB
}

// Open opens or creates an SQLite database at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Insert stores a delivery entry.
func (d *DB) Insert(e *Entry) error {
	_, err := d.db.Exec(`
		INSERT INTO deliveries (id, timestamp, kind, source, category, channel, text, delivered, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(tsLayout),
		e.Kind,
		e.Source,
		e.Category,
		e.Channel,
		e.Text,
		e.Delivered,
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// QueryFilter controls which entries are returned by Query.
type QueryFilter struct {
	Since    time.Time
	Until    time.Time
	Kind     string
	Category string
	Source   string
	Failed   bool // only entries that were not delivered
	Limit    int
}

// Query returns entries matching the filter, newest first.
func (d *DB) Query(f QueryFilter) ([]*Entry, error) {
	query := `SELECT id, timestamp, kind, source, category, channel, text, delivered, error
		FROM deliveries WHERE 1=1`
	var args []interface{}

	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(tsLayout))
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC().Format(tsLayout))
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.Source != "" {
		query += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.Failed {
		query += " AND delivered = FALSE"
	}

	query += " ORDER BY timestamp DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes entries older than the given retention duration.
func (d *DB) Purge(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(tsLayout)
	result, err := d.db.Exec(`DELETE FROM deliveries WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging old deliveries: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of stored entries.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM deliveries`).Scan(&count)
	return count, err
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var tsStr string
	var source, category, errStr sql.NullString

	err := rows.Scan(
		&e.ID,
		&tsStr,
		&e.Kind,
		&source,
		&category,
		&e.Channel,
		&e.Text,
		&e.Delivered,
		&errStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning delivery row: %w", err)
	}

	e.Timestamp, _ = time.Parse(tsLayout, tsStr)
	e.Source = source.String
	e.Category = category.String
	e.Error = errStr.String
	return &e, nil
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS deliveries (
			id        TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			kind      TEXT NOT NULL,
			source    TEXT,
			category  TEXT,
			channel   TEXT NOT NULL,
			text      TEXT NOT NULL,
			delivered BOOLEAN NOT NULL DEFAULT TRUE,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_ts ON deliveries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_kind ON deliveries(kind, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_source ON deliveries(source, timestamp)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	slog.Debug("database schema up to date")
	return nil
}
