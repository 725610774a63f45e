package model

import "time"

// Notification type constants
const (
	NotifTypeNearbyPet         = "nearby_pet"
	NotifTypeAchievement       = "achievement"
	NotifTypeDailyChallenge    = "daily_challenge"
	NotifTypeEmergency         = "emergency"
	NotifTypeWeeklyDigest      = "weekly_digest"
	NotifTypeTierUpgrade       = "tier_upgrade"
	NotifTypeChallengeReminder = "challenge_reminder"
)

// Notification priority constants
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ValidNotifType reports whether s is a known notification type.
func ValidNotifType(s string) bool {
	switch s {
	case NotifTypeNearbyPet, NotifTypeAchievement, NotifTypeDailyChallenge,
		NotifTypeEmergency, NotifTypeWeeklyDigest, NotifTypeTierUpgrade,
		NotifTypeChallengeReminder:
		return true
	}
	return false
}

// ValidPriority reports whether s is a known priority.
func ValidPriority(s string) bool {
	switch s {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Notification is one in-app notification record. Each device keeps at most
// 100 of these; the store evicts the oldest on overflow.
type Notification struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
	Priority   string         `json:"priority"`
	Category   string         `json:"category"`
	Actionable bool           `json:"actionable"`
	Actions    []string       `json:"actions,omitempty"`
	Read       bool           `json:"read"`
	CreatedAt  time.Time      `json:"created_at"`
}
