package store

import (
	"database/sql"
	"testing"

	"github.com/lostpaws/lostpaws/internal/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(f float64) *float64 { return &f }

func TestCreateAndGetPet(t *testing.T) {
	ps := NewPetStore(newTestDB(t))

	created, err := ps.Create("owner-1", "Fluffy", "cat", ptr(47.6), ptr(-122.3), 5000, "high")
	if err != nil {
		t.Fatalf("create pet: %v", err)
	}
	if created.ID == "" {
		t.Error("expected non-empty id")
	}

	got, err := ps.GetByID(created.ID)
	if err != nil {
		t.Fatalf("get pet: %v", err)
	}
	if got == nil {
		t.Fatal("pet not found after create")
	}
	if got.Name != "Fluffy" || got.Species != "cat" {
		t.Errorf("pet = %+v, want Fluffy the cat", got)
	}
	if got.Latitude == nil || *got.Latitude != 47.6 {
		t.Errorf("latitude = %v, want 47.6", got.Latitude)
	}
	if got.RewardCents != 5000 {
		t.Errorf("reward = %d, want 5000", got.RewardCents)
	}
	if got.Found {
		t.Error("new report should not be found")
	}
}

func TestGetPetMissing(t *testing.T) {
	ps := NewPetStore(newTestDB(t))

	got, err := ps.GetByID("no-such-pet")
	if err != nil {
		t.Fatalf("get missing pet: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil for missing pet", got)
	}
}

func TestCreatePetWithoutLocation(t *testing.T) {
	ps := NewPetStore(newTestDB(t))

	created, err := ps.Create("owner-1", "Ghost", "cat", nil, nil, 0, "normal")
	if err != nil {
		t.Fatalf("create pet: %v", err)
	}

	got, _ := ps.GetByID(created.ID)
	if got.HasLocation() {
		t.Error("pet created without coordinates should have no location")
	}
}

func TestListActiveExcludesFound(t *testing.T) {
	ps := NewPetStore(newTestDB(t))

	a, _ := ps.Create("o", "A", "dog", ptr(1), ptr(1), 0, "normal")
	ps.Create("o", "B", "dog", ptr(2), ptr(2), 0, "normal")

	if err := ps.MarkFound(a.ID); err != nil {
		t.Fatalf("mark found: %v", err)
	}

	active, err := ps.ListActive()
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	if active[0].Name != "B" {
		t.Errorf("active pet = %s, want B", active[0].Name)
	}

	found, _ := ps.GetByID(a.ID)
	if !found.Found || found.FoundAt == nil {
		t.Errorf("resolved pet = %+v, want found with timestamp", found)
	}
}

func TestMarkFoundIdempotent(t *testing.T) {
	ps := NewPetStore(newTestDB(t))

	p, _ := ps.Create("o", "A", "dog", ptr(1), ptr(1), 0, "normal")
	if err := ps.MarkFound(p.ID); err != nil {
		t.Fatalf("first mark found: %v", err)
	}
	first, _ := ps.GetByID(p.ID)

	if err := ps.MarkFound(p.ID); err != nil {
		t.Fatalf("second mark found: %v", err)
	}
	second, _ := ps.GetByID(p.ID)

	if !second.FoundAt.Equal(*first.FoundAt) {
		t.Error("re-marking found should not move the resolution timestamp")
	}
}
