package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lostpaws/lostpaws/internal/geo"
	"github.com/lostpaws/lostpaws/internal/model"
)

// kmPerDegreeLat is used to build the bounding box that prefilters the
// radius query before the exact haversine check.
const kmPerDegreeLat = 111.32

type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

const deviceColumns = `device_id, enabled, radius_km, nearby_pets, achievements, daily_challenges,
	emergency_broadcasts, weekly_digest, sound_enabled, quiet_enabled, quiet_start, quiet_end,
	snoozed_until, last_latitude, last_longitude, last_seen_at, created_at, updated_at`

// Upsert writes a device's full notification profile. Position fields are
// left alone; they change only through UpdateLocation.
func (s *DeviceStore) Upsert(p *model.DeviceProfile) error {
	_, err := s.db.Exec(
		`INSERT INTO devices (device_id, enabled, radius_km, nearby_pets, achievements, daily_challenges,
		     emergency_broadcasts, weekly_digest, sound_enabled, quiet_enabled, quiet_start, quiet_end, snoozed_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
		     enabled = excluded.enabled,
		     radius_km = excluded.radius_km,
		     nearby_pets = excluded.nearby_pets,
		     achievements = excluded.achievements,
		     daily_challenges = excluded.daily_challenges,
		     emergency_broadcasts = excluded.emergency_broadcasts,
		     weekly_digest = excluded.weekly_digest,
		     sound_enabled = excluded.sound_enabled,
		     quiet_enabled = excluded.quiet_enabled,
		     quiet_start = excluded.quiet_start,
		     quiet_end = excluded.quiet_end,
		     snoozed_until = excluded.snoozed_until,
		     updated_at = CURRENT_TIMESTAMP`,
		p.DeviceID, p.Enabled, p.RadiusKm, p.NearbyPets, p.Achievements, p.DailyChallenges,
		p.EmergencyBroadcasts, p.WeeklyDigest, p.SoundEnabled,
		p.QuietHours.Enabled, p.QuietHours.Start, p.QuietHours.End, p.SnoozedUntil,
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// EnsureExists creates a default profile row for an unknown device.
func (s *DeviceStore) EnsureExists(deviceID string) error {
	p := model.DefaultProfile(deviceID)
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO devices (device_id, enabled, radius_km, nearby_pets, achievements, daily_challenges,
		     emergency_broadcasts, weekly_digest, sound_enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.DeviceID, p.Enabled, p.RadiusKm, p.NearbyPets, p.Achievements, p.DailyChallenges,
		p.EmergencyBroadcasts, p.WeeklyDigest, p.SoundEnabled,
	)
	if err != nil {
		return fmt.Errorf("ensure device: %w", err)
	}
	return nil
}

func (s *DeviceStore) Get(deviceID string) (*model.DeviceProfile, error) {
	row := s.db.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	p, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return p, nil
}

// UpdateLocation records the device's last reported position.
func (s *DeviceStore) UpdateLocation(deviceID string, lat, lng float64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE devices SET last_latitude = ?, last_longitude = ?, last_seen_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE device_id = ?`,
		lat, lng, at.UTC(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("update device location: %w", err)
	}
	return nil
}

// Snooze suppresses all alerting for the device until the given time.
func (s *DeviceStore) Snooze(deviceID string, until time.Time) error {
	_, err := s.db.Exec(
		`UPDATE devices SET snoozed_until = ?, updated_at = CURRENT_TIMESTAMP WHERE device_id = ?`,
		until.UTC(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("snooze device: %w", err)
	}
	return nil
}

func (s *DeviceStore) ClearSnooze(deviceID string) error {
	_, err := s.db.Exec(
		`UPDATE devices SET snoozed_until = NULL, updated_at = CURRENT_TIMESTAMP WHERE device_id = ?`,
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("clear snooze: %w", err)
	}
	return nil
}

// ListWithLocation returns every device that has reported a position.
func (s *DeviceStore) ListWithLocation() ([]model.DeviceProfile, error) {
	rows, err := s.db.Query(
		`SELECT ` + deviceColumns + ` FROM devices WHERE last_latitude IS NOT NULL AND last_longitude IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("list located devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// ListWithinRadius resolves the device ids whose last known position lies
// within radiusKm of the center. A coarse bounding box narrows the SQL scan;
// the exact haversine check runs here.
func (s *DeviceStore) ListWithinRadius(lat, lng, radiusKm float64) ([]string, error) {
	latDelta := radiusKm / kmPerDegreeLat
	lngDelta := latDelta
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 0.01 {
		lngDelta = radiusKm / (kmPerDegreeLat * cosLat)
	}

	rows, err := s.db.Query(
		`SELECT device_id, last_latitude, last_longitude FROM devices
		 WHERE last_latitude BETWEEN ? AND ? AND last_longitude BETWEEN ? AND ?`,
		lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta,
	)
	if err != nil {
		return nil, fmt.Errorf("radius query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var dLat, dLng float64
		if err := rows.Scan(&id, &dLat, &dLng); err != nil {
			return nil, fmt.Errorf("scan radius row: %w", err)
		}
		if geo.InRadius(lat, lng, dLat, dLng, radiusKm) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// FilterEmergencyEnabled narrows ids to devices that are enabled and have
// the emergency_broadcasts toggle on.
func (s *DeviceStore) FilterEmergencyEnabled(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(
		`SELECT device_id FROM devices
		 WHERE device_id IN (`+placeholders(len(ids))+`) AND enabled = 1 AND emergency_broadcasts = 1`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("filter emergency devices: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan emergency device: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FilterSoundEnabled narrows ids to devices whose sound toggle is on.
func (s *DeviceStore) FilterSoundEnabled(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(
		`SELECT device_id FROM devices
		 WHERE device_id IN (`+placeholders(len(ids))+`) AND sound_enabled = 1`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("filter sound devices: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sound device: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListFallback returns up to limit registered device ids, oldest
// registrations first. The degraded path when the radius query fails.
func (s *DeviceStore) ListFallback(limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT device_id FROM devices ORDER BY created_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fallback query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan fallback row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanDevice(row rowScanner) (*model.DeviceProfile, error) {
	var p model.DeviceProfile
	var enabled, nearby, achievements, challenges, emergency, digest, sound, quietEnabled int
	var snoozedUntil, lastSeen sql.NullTime
	var lat, lng sql.NullFloat64
	err := row.Scan(
		&p.DeviceID, &enabled, &p.RadiusKm, &nearby, &achievements, &challenges,
		&emergency, &digest, &sound, &quietEnabled, &p.QuietHours.Start, &p.QuietHours.End,
		&snoozedUntil, &lat, &lng, &lastSeen, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Enabled = enabled != 0
	p.NearbyPets = nearby != 0
	p.Achievements = achievements != 0
	p.DailyChallenges = challenges != 0
	p.EmergencyBroadcasts = emergency != 0
	p.WeeklyDigest = digest != 0
	p.SoundEnabled = sound != 0
	p.QuietHours.Enabled = quietEnabled != 0
	if snoozedUntil.Valid {
		p.SnoozedUntil = &snoozedUntil.Time
	}
	if lat.Valid {
		p.LastLatitude = &lat.Float64
	}
	if lng.Valid {
		p.LastLongitude = &lng.Float64
	}
	if lastSeen.Valid {
		p.LastSeenAt = &lastSeen.Time
	}
	return &p, nil
}

func scanDevices(rows *sql.Rows) ([]model.DeviceProfile, error) {
	var devices []model.DeviceProfile
	for rows.Next() {
		p, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *p)
	}
	return devices, rows.Err()
}
