package store

import (
	"database/sql"
	"fmt"
	"time"
)

// dedupWindow is how long marked pets stay suppressed before the ledger is
// cleared wholesale.
const dedupWindow = 24 * time.Hour

// DedupLedger tracks which pets a device has already been notified about
// "today", so a (device, pet) pair yields at most one push per rolling 24h.
type DedupLedger struct {
	db *sql.DB
}

func NewDedupLedger(db *sql.DB) *DedupLedger {
	return &DedupLedger{db: db}
}

func (l *DedupLedger) HasNotified(deviceID, petID string) (bool, error) {
	var count int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM notified_pets WHERE device_id = ? AND pet_id = ?`,
		deviceID, petID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check notified: %w", err)
	}
	return count > 0, nil
}

// MarkNotified records that the device was alerted about the pet. pushed
// says whether the OS push went out too; a pair already marked pushed never
// downgrades back to in-app-only.
func (l *DedupLedger) MarkNotified(deviceID, petID string, pushed bool) error {
	_, err := l.db.Exec(
		`INSERT INTO notified_pets (device_id, pet_id, pushed, marked_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_id, pet_id) DO UPDATE SET pushed = max(pushed, excluded.pushed)`,
		deviceID, petID, pushed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// NotifiedSet returns the pets currently marked for the device. Presence in
// the map means the in-app record exists; a true value means the OS push was
// also sent, a false value means it is still owed (held back by quiet hours).
func (l *DedupLedger) NotifiedSet(deviceID string) (map[string]bool, error) {
	rows, err := l.db.Query(
		`SELECT pet_id, pushed FROM notified_pets WHERE device_id = ?`, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notified: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var id string
		var pushed bool
		if err := rows.Scan(&id, &pushed); err != nil {
			return nil, fmt.Errorf("scan notified pet: %w", err)
		}
		set[id] = pushed
	}
	return set, rows.Err()
}

// RolloverIfStale clears the whole set once more than 24h have passed since
// the last clear. Idempotent and safe to call on every check cycle.
func (l *DedupLedger) RolloverIfStale(deviceID string, now time.Time) error {
	now = now.UTC()

	var lastClear time.Time
	err := l.db.QueryRow(
		`SELECT last_clear FROM dedup_clears WHERE device_id = ?`, deviceID,
	).Scan(&lastClear)
	if err == sql.ErrNoRows {
		_, err = l.db.Exec(
			`INSERT INTO dedup_clears (device_id, last_clear) VALUES (?, ?)`, deviceID, now,
		)
		if err != nil {
			return fmt.Errorf("init dedup clock: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read dedup clock: %w", err)
	}

	if now.Sub(lastClear) <= dedupWindow {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin rollover: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM notified_pets WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("clear notified pets: %w", err)
	}
	if _, err := tx.Exec(`UPDATE dedup_clears SET last_clear = ? WHERE device_id = ?`, now, deviceID); err != nil {
		return fmt.Errorf("reset dedup clock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollover: %w", err)
	}
	return nil
}
