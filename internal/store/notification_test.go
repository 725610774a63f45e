package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lostpaws/lostpaws/internal/model"
)

func testNotification(deviceID, notifType, priority string) *model.Notification {
	return &model.Notification{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Type:      notifType,
		Title:     "Title",
		Body:      "Body",
		Data:      map[string]any{"pet_id": "p1"},
		Priority:  priority,
		Category:  notifType,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAppendAndList(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))

	n := testNotification("d1", model.NotifTypeNearbyPet, model.PriorityHigh)
	if err := ns.Append(n); err != nil {
		t.Fatalf("append: %v", err)
	}

	list, err := ns.List("d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	got := list[0]
	if got.ID != n.ID || got.Type != model.NotifTypeNearbyPet || got.Priority != model.PriorityHigh {
		t.Errorf("notification = %+v", got)
	}
	if got.Data["pet_id"] != "p1" {
		t.Errorf("data = %v, want pet_id p1", got.Data)
	}
	if got.Read {
		t.Error("new notification should be unread")
	}
}

func TestAppendCapEvictsOldest(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))

	for i := 0; i < 105; i++ {
		n := testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal)
		n.Title = fmt.Sprintf("n-%d", i)
		if err := ns.Append(n); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	list, err := ns.List("d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != MaxNotificationsPerDevice {
		t.Fatalf("len = %d, want %d", len(list), MaxNotificationsPerDevice)
	}
	// Newest first; the oldest five (n-0..n-4) must be gone
	if list[0].Title != "n-104" {
		t.Errorf("newest = %s, want n-104", list[0].Title)
	}
	if list[len(list)-1].Title != "n-5" {
		t.Errorf("oldest kept = %s, want n-5", list[len(list)-1].Title)
	}
}

func TestCapIsPerDevice(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))

	for i := 0; i < 101; i++ {
		ns.Append(testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal))
	}
	ns.Append(testNotification("d2", model.NotifTypeNearbyPet, model.PriorityNormal))

	d2, _ := ns.List("d2")
	if len(d2) != 1 {
		t.Errorf("d2 len = %d, want 1 (eviction must not cross devices)", len(d2))
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))

	a := testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal)
	b := testNotification("d1", model.NotifTypeEmergency, model.PriorityCritical)
	ns.Append(a)
	ns.Append(b)

	count, err := ns.UnreadCount("d1")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 2 {
		t.Errorf("unread = %d, want 2", count)
	}

	if err := ns.MarkRead("d1", a.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, _ = ns.UnreadCount("d1")
	if count != 1 {
		t.Errorf("unread = %d, want 1", count)
	}

	if err := ns.MarkAllRead("d1"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	count, _ = ns.UnreadCount("d1")
	if count != 0 {
		t.Errorf("unread = %d, want 0", count)
	}
}

func TestDeleteAndClearAll(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))

	a := testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal)
	ns.Append(a)
	ns.Append(testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal))

	if err := ns.Delete("d1", a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ := ns.List("d1")
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1 after delete", len(list))
	}

	if err := ns.ClearAll("d1"); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	list, _ = ns.List("d1")
	if len(list) != 0 {
		t.Errorf("len = %d, want 0 after clear", len(list))
	}
}

func TestFilter(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))

	nearby := testNotification("d1", model.NotifTypeNearbyPet, model.PriorityHigh)
	emergency := testNotification("d1", model.NotifTypeEmergency, model.PriorityCritical)
	digest := testNotification("d1", model.NotifTypeWeeklyDigest, model.PriorityLow)
	ns.Append(nearby)
	ns.Append(emergency)
	ns.Append(digest)
	ns.MarkRead("d1", digest.ID)

	byType, err := ns.Filter("d1", NotificationFilter{Types: []string{model.NotifTypeNearbyPet, model.NotifTypeEmergency}})
	if err != nil {
		t.Fatalf("filter by type: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("by type len = %d, want 2", len(byType))
	}

	byPriority, err := ns.Filter("d1", NotificationFilter{Priorities: []string{model.PriorityCritical}})
	if err != nil {
		t.Fatalf("filter by priority: %v", err)
	}
	if len(byPriority) != 1 || byPriority[0].ID != emergency.ID {
		t.Errorf("by priority = %+v, want just the emergency", byPriority)
	}

	unread := false
	read := true
	unreadOnly, _ := ns.Filter("d1", NotificationFilter{Read: &unread})
	if len(unreadOnly) != 2 {
		t.Errorf("unread len = %d, want 2", len(unreadOnly))
	}
	readOnly, _ := ns.Filter("d1", NotificationFilter{Read: &read})
	if len(readOnly) != 1 {
		t.Errorf("read len = %d, want 1", len(readOnly))
	}
}

func TestFilterRestartable(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))
	for i := 0; i < 5; i++ {
		ns.Append(testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal))
	}

	f := NotificationFilter{Types: []string{model.NotifTypeNearbyPet}}
	first, err := ns.Filter("d1", f)
	if err != nil {
		t.Fatalf("first filter: %v", err)
	}
	second, err := ns.Filter("d1", f)
	if err != nil {
		t.Fatalf("second filter: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("filter not restartable: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("row %d differs between identical filter calls", i)
		}
	}
}

func TestFilterDateRange(t *testing.T) {
	ns := NewNotificationStore(newTestDB(t))

	old := testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal)
	old.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := testNotification("d1", model.NotifTypeNearbyPet, model.PriorityNormal)
	recent.CreatedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ns.Append(old)
	ns.Append(recent)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	got, err := ns.Filter("d1", NotificationFilter{From: &from})
	if err != nil {
		t.Fatalf("filter from: %v", err)
	}
	if len(got) != 1 || got[0].ID != recent.ID {
		t.Errorf("from filter = %+v, want just the recent one", got)
	}
}
