// Package policy gates whether a candidate alert becomes an in-app record,
// an OS-level push, both, or nothing.
package policy

import (
	"fmt"
	"time"

	"github.com/lostpaws/lostpaws/internal/model"
)

// Decision is the outcome for one candidate alert.
type Decision struct {
	RecordInApp bool
	SendPush    bool
}

// Decide applies the gating rules in order, short-circuiting:
//
//  1. Notifications disabled, the category toggle off, or no push
//     permission: suppress everything. A hard gate, not a preference.
//  2. Snoozed and the window has not elapsed: suppress everything.
//  3. Otherwise an in-app record is always written.
//  4. The push goes out only outside quiet hours.
//
// Marking the dedup ledger after a successful push decision is the caller's
// job, as is excluding already-notified pets before calling Decide.
func Decide(notifType string, profile *model.DeviceProfile, hasPushPermission bool, now time.Time) Decision {
	if !profile.Enabled || !profile.CategoryEnabled(notifType) || !hasPushPermission {
		return Decision{}
	}
	if profile.SnoozedUntil != nil && now.Before(*profile.SnoozedUntil) {
		return Decision{}
	}
	return Decision{
		RecordInApp: true,
		SendPush:    !InQuietHours(profile.QuietHours, now),
	}
}

// InQuietHours reports whether now falls inside the configured quiet window.
// A window whose end is earlier than its start wraps midnight: 22:00–08:00
// is active at 23:00 and at 07:00, inactive at 09:00.
func InQuietHours(q model.QuietHours, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
