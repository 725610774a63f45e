package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lostpaws/lostpaws/internal/model"
)

// MaxNotificationsPerDevice caps the in-app list; the oldest entries are
// evicted inside the append transaction when the cap is exceeded.
const MaxNotificationsPerDevice = 100

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// NotificationFilter selects a subset of a device's notifications. Empty
// fields match everything. Each Filter call runs a fresh query, so the view
// is finite, restartable, and retains no state between calls.
type NotificationFilter struct {
	Types      []string
	Priorities []string
	Read       *bool
	From       *time.Time
	To         *time.Time
}

// Append inserts a notification and evicts beyond-cap entries, oldest first,
// in one transaction.
func (s *NotificationStore) Append(n *model.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	actions, err := json.Marshal(n.Actions)
	if err != nil {
		return fmt.Errorf("marshal notification actions: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO notifications (id, device_id, type, title, body, data, priority, category, actionable, actions, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.DeviceID, n.Type, n.Title, n.Body, string(data), n.Priority, n.Category,
		n.Actionable, string(actions), n.Read, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	// rowid order is insertion order, so this keeps the newest 100 even when
	// timestamps collide.
	_, err = tx.Exec(
		`DELETE FROM notifications WHERE device_id = ? AND rowid NOT IN (
		     SELECT rowid FROM notifications WHERE device_id = ? ORDER BY rowid DESC LIMIT ?
		 )`,
		n.DeviceID, n.DeviceID, MaxNotificationsPerDevice,
	)
	if err != nil {
		return fmt.Errorf("evict notifications: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Filter returns the device's notifications matching f, newest first.
func (s *NotificationStore) Filter(deviceID string, f NotificationFilter) ([]model.Notification, error) {
	query := strings.Builder{}
	query.WriteString(
		`SELECT id, device_id, type, title, body, data, priority, category, actionable, actions, read, created_at
		 FROM notifications WHERE device_id = ?`)
	args := []any{deviceID}

	if len(f.Types) > 0 {
		query.WriteString(` AND type IN (` + placeholders(len(f.Types)) + `)`)
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if len(f.Priorities) > 0 {
		query.WriteString(` AND priority IN (` + placeholders(len(f.Priorities)) + `)`)
		for _, p := range f.Priorities {
			args = append(args, p)
		}
	}
	if f.Read != nil {
		query.WriteString(` AND read = ?`)
		args = append(args, *f.Read)
	}
	if f.From != nil {
		query.WriteString(` AND created_at >= ?`)
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		query.WriteString(` AND created_at <= ?`)
		args = append(args, f.To.UTC())
	}
	query.WriteString(` ORDER BY rowid DESC`)

	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("filter notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// List returns all of the device's notifications, newest first.
func (s *NotificationStore) List(deviceID string) ([]model.Notification, error) {
	return s.Filter(deviceID, NotificationFilter{})
}

func (s *NotificationStore) MarkRead(deviceID, id string) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET read = 1 WHERE id = ? AND device_id = ?`, id, deviceID,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *NotificationStore) MarkAllRead(deviceID string) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET read = 1 WHERE device_id = ?`, deviceID,
	)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (s *NotificationStore) Delete(deviceID, id string) error {
	_, err := s.db.Exec(
		`DELETE FROM notifications WHERE id = ? AND device_id = ?`, id, deviceID,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) ClearAll(deviceID string) error {
	_, err := s.db.Exec(`DELETE FROM notifications WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}

// UnreadCount is always derived from the rows, never persisted, so it cannot
// drift from the list itself.
func (s *NotificationStore) UnreadCount(deviceID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notifications WHERE device_id = ? AND read = 0`, deviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	var n model.Notification
	var data, actions string
	var actionable, read int
	err := row.Scan(&n.ID, &n.DeviceID, &n.Type, &n.Title, &n.Body, &data, &n.Priority,
		&n.Category, &actionable, &actions, &read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Actionable = actionable != 0
	n.Read = read != 0
	if data != "" && data != "null" {
		if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	if actions != "" && actions != "null" {
		if err := json.Unmarshal([]byte(actions), &n.Actions); err != nil {
			return nil, fmt.Errorf("unmarshal notification actions: %w", err)
		}
	}
	return &n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
