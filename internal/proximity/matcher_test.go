package proximity

import (
	"testing"
	"time"

	"github.com/lostpaws/lostpaws/internal/model"
)

func ptr(f float64) *float64 { return &f }

func petAt(id string, lat, lng float64, createdAt time.Time) model.Pet {
	return model.Pet{
		ID:        id,
		Name:      "Pet " + id,
		Latitude:  ptr(lat),
		Longitude: ptr(lng),
		Urgency:   model.UrgencyNormal,
		CreatedAt: createdAt,
	}
}

func TestMatchFiltersByRadius(t *testing.T) {
	now := time.Now()
	pets := []model.Pet{
		petAt("near", 47.6100, -122.3321, now),  // ~0.4 km north
		petAt("far", 47.7000, -122.3321, now),   // ~10 km north
		petAt("edge", 47.6500, -122.3321, now),  // ~4.9 km north
	}

	got := Match(47.6062, -122.3321, pets, 5)
	if len(got) != 2 {
		t.Fatalf("matched %d pets, want 2", len(got))
	}
	if got[0].Pet.ID != "near" || got[1].Pet.ID != "edge" {
		t.Errorf("order = [%s %s], want [near edge]", got[0].Pet.ID, got[1].Pet.ID)
	}
}

func TestMatchSortsByDistance(t *testing.T) {
	now := time.Now()
	pets := []model.Pet{
		petAt("c", 47.6362, -122.3321, now),
		petAt("a", 47.6100, -122.3321, now),
		petAt("b", 47.6200, -122.3321, now),
	}

	got := Match(47.6062, -122.3321, pets, 20)
	if len(got) != 3 {
		t.Fatalf("matched %d pets, want 3", len(got))
	}
	order := []string{got[0].Pet.ID, got[1].Pet.ID, got[2].Pet.ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceKm < got[i-1].DistanceKm {
			t.Errorf("distances not ascending: %v", got)
		}
	}
}

func TestMatchTieBreakByRecency(t *testing.T) {
	older := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Identical coordinates, identical distance
	pets := []model.Pet{
		petAt("old", 47.6100, -122.3321, older),
		petAt("new", 47.6100, -122.3321, newer),
	}

	got := Match(47.6062, -122.3321, pets, 5)
	if len(got) != 2 {
		t.Fatalf("matched %d, want 2", len(got))
	}
	if got[0].Pet.ID != "new" {
		t.Errorf("first = %s, want new (most recent wins the tie)", got[0].Pet.ID)
	}
}

func TestMatchSkipsFoundAndUnlocated(t *testing.T) {
	now := time.Now()
	found := petAt("found", 47.6100, -122.3321, now)
	found.Found = true
	unlocated := model.Pet{ID: "nowhere", Name: "Ghost", CreatedAt: now}

	got := Match(47.6062, -122.3321, []model.Pet{found, unlocated}, 20)
	if len(got) != 0 {
		t.Errorf("matched %d pets, want 0", len(got))
	}
}

func TestMatchEmptyInput(t *testing.T) {
	if got := Match(47.6, -122.3, nil, 5); len(got) != 0 {
		t.Errorf("matched %d pets from empty feed, want 0", len(got))
	}
}
