package policy

import (
	"testing"
	"time"

	"github.com/lostpaws/lostpaws/internal/model"
)

func activeProfile() *model.DeviceProfile {
	p := model.DefaultProfile("device-1")
	return &p
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestDecideHappyPath(t *testing.T) {
	d := Decide(model.NotifTypeNearbyPet, activeProfile(), true, at(14, 0))
	if !d.RecordInApp || !d.SendPush {
		t.Errorf("decision = %+v, want record and push", d)
	}
}

func TestDecideDisabledSuppressesBoth(t *testing.T) {
	p := activeProfile()
	p.Enabled = false

	d := Decide(model.NotifTypeNearbyPet, p, true, at(14, 0))
	if d.RecordInApp || d.SendPush {
		t.Errorf("decision = %+v, want full suppression when disabled", d)
	}
}

func TestDecideCategoryToggleSuppressesBoth(t *testing.T) {
	p := activeProfile()
	p.NearbyPets = false

	d := Decide(model.NotifTypeNearbyPet, p, true, at(14, 0))
	if d.RecordInApp || d.SendPush {
		t.Errorf("decision = %+v, want full suppression when category off", d)
	}

	// Other categories unaffected
	d = Decide(model.NotifTypeEmergency, p, true, at(14, 0))
	if !d.RecordInApp {
		t.Error("emergency category should still record")
	}
}

func TestDecideNoPermissionSuppressesBoth(t *testing.T) {
	d := Decide(model.NotifTypeNearbyPet, activeProfile(), false, at(14, 0))
	if d.RecordInApp || d.SendPush {
		t.Errorf("decision = %+v, want full suppression without push permission", d)
	}
}

func TestDecideSnooze(t *testing.T) {
	p := activeProfile()
	until := at(14, 15)
	p.SnoozedUntil = &until

	// Inside the window: nothing
	d := Decide(model.NotifTypeNearbyPet, p, true, at(14, 5))
	if d.RecordInApp || d.SendPush {
		t.Errorf("decision = %+v, want full suppression while snoozed", d)
	}

	// Window elapsed: suppression lifts without an explicit unsnooze
	d = Decide(model.NotifTypeNearbyPet, p, true, at(14, 20))
	if !d.RecordInApp || !d.SendPush {
		t.Errorf("decision = %+v, want record and push after snooze expires", d)
	}
}

func TestDecideQuietHoursRecordsButNoPush(t *testing.T) {
	p := activeProfile()
	p.QuietHours = model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}

	d := Decide(model.NotifTypeNearbyPet, p, true, at(23, 0))
	if !d.RecordInApp {
		t.Error("quiet hours must still write the in-app record")
	}
	if d.SendPush {
		t.Error("quiet hours must suppress the push")
	}

	d = Decide(model.NotifTypeNearbyPet, p, true, at(9, 0))
	if !d.SendPush {
		t.Error("expected push outside quiet hours")
	}
}

func TestInQuietHours(t *testing.T) {
	tests := []struct {
		name       string
		q          model.QuietHours
		hour, min  int
		want       bool
	}{
		{"disabled", model.QuietHours{Start: "22:00", End: "08:00"}, 23, 0, false},
		{"wrap active late", model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}, 23, 0, true},
		{"wrap active early", model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}, 7, 30, true},
		{"wrap inactive", model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}, 9, 0, false},
		{"wrap boundary start", model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}, 22, 0, true},
		{"wrap boundary end", model.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}, 8, 0, true},
		{"same-day active", model.QuietHours{Enabled: true, Start: "12:00", End: "14:00"}, 13, 0, true},
		{"same-day inactive", model.QuietHours{Enabled: true, Start: "12:00", End: "14:00"}, 15, 0, false},
		{"unparseable start", model.QuietHours{Enabled: true, Start: "late", End: "08:00"}, 23, 0, false},
		{"out of range", model.QuietHours{Enabled: true, Start: "25:00", End: "08:00"}, 23, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InQuietHours(tt.q, at(tt.hour, tt.min)); got != tt.want {
				t.Errorf("InQuietHours(%+v, %02d:%02d) = %v, want %v", tt.q, tt.hour, tt.min, got, tt.want)
			}
		})
	}
}
