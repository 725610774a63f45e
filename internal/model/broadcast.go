package model

import "time"

// EmergencyRadiusKm is the fixed blast radius for owner-triggered emergency
// broadcasts. Deliberately independent of any device's nearby-pet radius.
const EmergencyRadiusKm = 15.0

// Broadcast job states.
const (
	BroadcastStatusCreated     = "created"
	BroadcastStatusResolving   = "resolving"
	BroadcastStatusDispatching = "dispatching"
	BroadcastStatusCompleted   = "completed"
	BroadcastStatusFailed      = "failed"
)

// BroadcastTypeEmergency tags analytics rows written by the emergency path.
const BroadcastTypeEmergency = "emergency_lost_pet"

// BroadcastJob is the analytics record for one emergency fan-out.
// RecipientsCount is attempted deliveries, not confirmed ones.
type BroadcastJob struct {
	ID              string    `json:"id"`
	PetID           string    `json:"pet_id"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	RadiusKm        float64   `json:"radius_km"`
	RecipientsCount int       `json:"recipients_count"`
	BroadcastType   string    `json:"broadcast_type"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
