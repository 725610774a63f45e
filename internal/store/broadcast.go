package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lostpaws/lostpaws/internal/model"
)

// BroadcastStore is the analytics sink for emergency fan-out jobs.
type BroadcastStore struct {
	db *sql.DB
}

func NewBroadcastStore(db *sql.DB) *BroadcastStore {
	return &BroadcastStore{db: db}
}

// Create records a new broadcast job in the created state.
func (s *BroadcastStore) Create(petID string, lat, lng, radiusKm float64, broadcastType string) (*model.BroadcastJob, error) {
	job := &model.BroadcastJob{
		ID:            uuid.NewString(),
		PetID:         petID,
		Latitude:      lat,
		Longitude:     lng,
		RadiusKm:      radiusKm,
		BroadcastType: broadcastType,
		Status:        model.BroadcastStatusCreated,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO broadcast_jobs (id, pet_id, latitude, longitude, radius_km, recipients_count, broadcast_type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		job.ID, job.PetID, job.Latitude, job.Longitude, job.RadiusKm, job.BroadcastType, job.Status, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create broadcast job: %w", err)
	}
	return job, nil
}

func (s *BroadcastStore) UpdateStatus(id, status string) error {
	_, err := s.db.Exec(`UPDATE broadcast_jobs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update broadcast status: %w", err)
	}
	return nil
}

// SetRecipients records the attempted (not confirmed) recipient count.
func (s *BroadcastStore) SetRecipients(id string, count int) error {
	_, err := s.db.Exec(`UPDATE broadcast_jobs SET recipients_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set broadcast recipients: %w", err)
	}
	return nil
}

func (s *BroadcastStore) GetByID(id string) (*model.BroadcastJob, error) {
	var job model.BroadcastJob
	err := s.db.QueryRow(
		`SELECT id, pet_id, latitude, longitude, radius_km, recipients_count, broadcast_type, status, created_at
		 FROM broadcast_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.PetID, &job.Latitude, &job.Longitude, &job.RadiusKm,
		&job.RecipientsCount, &job.BroadcastType, &job.Status, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get broadcast job: %w", err)
	}
	return &job, nil
}

// LatestByPet returns the most recently created job for a pet, nil when none.
func (s *BroadcastStore) LatestByPet(petID string) (*model.BroadcastJob, error) {
	var job model.BroadcastJob
	err := s.db.QueryRow(
		`SELECT id, pet_id, latitude, longitude, radius_km, recipients_count, broadcast_type, status, created_at
		 FROM broadcast_jobs WHERE pet_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, petID,
	).Scan(&job.ID, &job.PetID, &job.Latitude, &job.Longitude, &job.RadiusKm,
		&job.RecipientsCount, &job.BroadcastType, &job.Status, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest broadcast job: %w", err)
	}
	return &job, nil
}

// CountByPet returns how many broadcast jobs were recorded for a pet.
func (s *BroadcastStore) CountByPet(petID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM broadcast_jobs WHERE pet_id = ?`, petID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count broadcast jobs: %w", err)
	}
	return count, nil
}
