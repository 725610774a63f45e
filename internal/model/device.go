package model

import "time"

// Bounds for the user-configurable nearby-pet radius, enforced at the HTTP edge.
const (
	MinRadiusKm     = 1.0
	MaxRadiusKm     = 20.0
	DefaultRadiusKm = 5.0
)

// QuietHours is a daily window during which OS-level alerts are suppressed
// but in-app records still persist.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "HH:MM"
	End     string `json:"end"`   // "HH:MM"; End earlier than Start means the window wraps midnight
}

// DeviceProfile holds one device's notification preferences and its last
// reported position. Mutated only through explicit settings updates.
type DeviceProfile struct {
	DeviceID            string     `json:"device_id"`
	Enabled             bool       `json:"enabled"`
	RadiusKm            float64    `json:"radius_km"`
	NearbyPets          bool       `json:"nearby_pets"`
	Achievements        bool       `json:"achievements"`
	DailyChallenges     bool       `json:"daily_challenges"`
	EmergencyBroadcasts bool       `json:"emergency_broadcasts"`
	WeeklyDigest        bool       `json:"weekly_digest"`
	SoundEnabled        bool       `json:"sound_enabled"`
	QuietHours          QuietHours `json:"quiet_hours"`
	SnoozedUntil        *time.Time `json:"snoozed_until,omitempty"`
	LastLatitude        *float64   `json:"last_latitude,omitempty"`
	LastLongitude       *float64   `json:"last_longitude,omitempty"`
	LastSeenAt          *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DefaultProfile is what a device gets before any explicit settings update.
func DefaultProfile(deviceID string) DeviceProfile {
	return DeviceProfile{
		DeviceID:            deviceID,
		Enabled:             true,
		RadiusKm:            DefaultRadiusKm,
		NearbyPets:          true,
		Achievements:        true,
		DailyChallenges:     true,
		EmergencyBroadcasts: true,
		WeeklyDigest:        true,
		SoundEnabled:        true,
	}
}

// HasLocation reports whether the device has ever reported a position.
func (p *DeviceProfile) HasLocation() bool {
	return p.LastLatitude != nil && p.LastLongitude != nil
}

// CategoryEnabled reports whether the per-category toggle covering the given
// notification type is on.
func (p *DeviceProfile) CategoryEnabled(notifType string) bool {
	switch notifType {
	case NotifTypeNearbyPet:
		return p.NearbyPets
	case NotifTypeAchievement, NotifTypeTierUpgrade:
		return p.Achievements
	case NotifTypeDailyChallenge, NotifTypeChallengeReminder:
		return p.DailyChallenges
	case NotifTypeEmergency:
		return p.EmergencyBroadcasts
	case NotifTypeWeeklyDigest:
		return p.WeeklyDigest
	}
	return false
}
