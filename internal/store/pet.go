package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lostpaws/lostpaws/internal/model"
)

type PetStore struct {
	db *sql.DB
}

func NewPetStore(db *sql.DB) *PetStore {
	return &PetStore{db: db}
}

// Create inserts a new lost pet report.
func (s *PetStore) Create(ownerID, name, species string, lat, lng *float64, rewardCents int64, urgency string) (*model.Pet, error) {
	p := &model.Pet{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Species:     species,
		Latitude:    lat,
		Longitude:   lng,
		RewardCents: rewardCents,
		Urgency:     urgency,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO pets (id, owner_id, name, species, latitude, longitude, reward_cents, urgency, found, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		p.ID, p.OwnerID, p.Name, p.Species, p.Latitude, p.Longitude, p.RewardCents, p.Urgency, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create pet: %w", err)
	}
	return p, nil
}

func (s *PetStore) GetByID(id string) (*model.Pet, error) {
	row := s.db.QueryRow(
		`SELECT id, owner_id, name, species, latitude, longitude, reward_cents, urgency, found, created_at, found_at
		 FROM pets WHERE id = ?`, id,
	)
	p, err := scanPet(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pet: %w", err)
	}
	return p, nil
}

// ListActive returns all pets not yet marked found, newest first.
func (s *PetStore) ListActive() ([]model.Pet, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, name, species, latitude, longitude, reward_cents, urgency, found, created_at, found_at
		 FROM pets WHERE found = 0 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active pets: %w", err)
	}
	defer rows.Close()

	var pets []model.Pet
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		pets = append(pets, *p)
	}
	return pets, rows.Err()
}

// MarkFound resolves a report. Idempotent: re-marking a found pet is a no-op.
func (s *PetStore) MarkFound(id string) error {
	_, err := s.db.Exec(
		`UPDATE pets SET found = 1, found_at = ? WHERE id = ? AND found = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark pet found: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPet(row rowScanner) (*model.Pet, error) {
	var p model.Pet
	var lat, lng sql.NullFloat64
	var foundInt int
	var foundAt sql.NullTime
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &lat, &lng, &p.RewardCents, &p.Urgency, &foundInt, &p.CreatedAt, &foundAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		p.Latitude = &lat.Float64
	}
	if lng.Valid {
		p.Longitude = &lng.Float64
	}
	p.Found = foundInt != 0
	if foundAt.Valid {
		p.FoundAt = &foundAt.Time
	}
	return &p, nil
}
