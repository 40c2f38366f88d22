package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Totals counts deliveries since an instant.
type Totals struct {
	Delivered int
	Failed    int
	Last      time.Time // zero when nothing was recorded
}

// TotalsSince returns delivery counts for entries at or after since.
func (d *DB) TotalsSince(since time.Time) (Totals, error) {
	var (
		t                 Totals
		delivered, failed sql.NullInt64
		last              sql.NullString
	)
	err := d.db.QueryRow(`
		SELECT
			SUM(CASE WHEN delivered THEN 1 ELSE 0 END),
			SUM(CASE WHEN delivered THEN 0 ELSE 1 END),
			MAX(timestamp)
		FROM deliveries WHERE timestamp >= ?`,
		since.UTC().Format(tsLayout),
	).Scan(&delivered, &failed, &last)
	if err != nil && err != sql.ErrNoRows {
		return Totals{}, fmt.Errorf("counting deliveries: %w", err)
	}

	t.Delivered = int(delivered.Int64)
	t.Failed = int(failed.Int64)
	if last.Valid {
		t.Last, _ = time.Parse(tsLayout, last.String)
	}
	return t, nil
}
