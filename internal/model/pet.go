package model

import "time"

// Urgency levels for lost pet reports.
const (
	UrgencyLow      = "low"
	UrgencyNormal   = "normal"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

// ValidUrgency reports whether s is a known urgency level.
func ValidUrgency(s string) bool {
	switch s {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Pet is a lost pet report. Location is optional: reports filed without
// coordinates are kept but never matched for proximity alerts.
type Pet struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Species     string     `json:"species"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	RewardCents int64      `json:"reward_cents"`
	Urgency     string     `json:"urgency"`
	Found       bool       `json:"found"`
	CreatedAt   time.Time  `json:"created_at"`
	FoundAt     *time.Time `json:"found_at,omitempty"`
}

// HasLocation reports whether the report carries coordinates.
func (p *Pet) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}
