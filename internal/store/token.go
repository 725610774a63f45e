package store

import (
	"database/sql"
	"fmt"

	"github.com/lostpaws/lostpaws/internal/model"
)

type PushTokenStore struct {
	db *sql.DB
}

func NewPushTokenStore(db *sql.DB) *PushTokenStore {
	return &PushTokenStore{db: db}
}

// Register upserts a push token. Re-registering an existing token moves it
// to the new device and type.
func (s *PushTokenStore) Register(deviceID, token, deviceType string) (*model.PushToken, error) {
	result, err := s.db.Exec(
		`INSERT INTO push_tokens (device_id, token, device_type)
		 VALUES (?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET device_id = excluded.device_id, device_type = excluded.device_type`,
		deviceID, token, deviceType,
	)
	if err != nil {
		return nil, fmt.Errorf("register push token: %w", err)
	}
	id, _ := result.LastInsertId()

	// LastInsertId may be 0 on conflict update; re-query by token
	if id == 0 {
		return s.getByToken(token)
	}
	return s.getByID(id)
}

func (s *PushTokenStore) getByID(id int64) (*model.PushToken, error) {
	row := s.db.QueryRow(
		`SELECT id, device_id, token, device_type, created_at FROM push_tokens WHERE id = ?`, id,
	)
	return scanToken(row, "get push token")
}

func (s *PushTokenStore) getByToken(token string) (*model.PushToken, error) {
	row := s.db.QueryRow(
		`SELECT id, device_id, token, device_type, created_at FROM push_tokens WHERE token = ?`, token,
	)
	return scanToken(row, "get push token by value")
}

// HasToken reports whether the device has any registered push destination.
// This is what "push permission granted" means server-side.
func (s *PushTokenStore) HasToken(deviceID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM push_tokens WHERE device_id = ?`, deviceID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check push token: %w", err)
	}
	return count > 0, nil
}

func (s *PushTokenStore) ListByDevice(deviceID string) ([]model.PushToken, error) {
	rows, err := s.db.Query(
		`SELECT id, device_id, token, device_type, created_at FROM push_tokens
		 WHERE device_id = ? ORDER BY created_at DESC`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	defer rows.Close()
	return scanTokens(rows)
}

// ListByDevices returns every token registered by any of the given devices.
func (s *PushTokenStore) ListByDevices(deviceIDs []string) ([]model.PushToken, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(deviceIDs))
	for i, id := range deviceIDs {
		args[i] = id
	}
	rows, err := s.db.Query(
		`SELECT id, device_id, token, device_type, created_at FROM push_tokens
		 WHERE device_id IN (`+placeholders(len(deviceIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list push tokens by devices: %w", err)
	}
	defer rows.Close()
	return scanTokens(rows)
}

// DeleteByToken removes a dead token (gateway DeviceNotRegistered, webpush 410).
func (s *PushTokenStore) DeleteByToken(token string) error {
	_, err := s.db.Exec(`DELETE FROM push_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete push token: %w", err)
	}
	return nil
}

func scanToken(row rowScanner, op string) (*model.PushToken, error) {
	var t model.PushToken
	err := row.Scan(&t.ID, &t.DeviceID, &t.Token, &t.DeviceType, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

func scanTokens(rows *sql.Rows) ([]model.PushToken, error) {
	var tokens []model.PushToken
	for rows.Next() {
		var t model.PushToken
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.Token, &t.DeviceType, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
