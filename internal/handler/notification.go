package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lostpaws/lostpaws/internal/model"
	"github.com/lostpaws/lostpaws/internal/store"
)

type NotificationHandler struct {
	notifs *store.NotificationStore
	logger *slog.Logger
}

func NewNotificationHandler(notifs *store.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifs: notifs, logger: logger}
}

// List handles GET /api/devices/{id}/notifications with optional query
// filters: type, priority (comma-separated), read, from, to (RFC 3339).
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	q := r.URL.Query()

	var f store.NotificationFilter
	if types := q.Get("type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if !model.ValidNotifType(t) {
				writeError(w, http.StatusBadRequest, "unknown notification type: "+t)
				return
			}
			f.Types = append(f.Types, t)
		}
	}
	if priorities := q.Get("priority"); priorities != "" {
		for _, p := range strings.Split(priorities, ",") {
			if !model.ValidPriority(p) {
				writeError(w, http.StatusBadRequest, "unknown priority: "+p)
				return
			}
			f.Priorities = append(f.Priorities, p)
		}
	}
	if read := q.Get("read"); read != "" {
		switch read {
		case "true":
			v := true
			f.Read = &v
		case "false":
			v := false
			f.Read = &v
		default:
			writeError(w, http.StatusBadRequest, "read must be true or false")
			return
		}
	}
	if from := q.Get("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		f.From = &ts
	}
	if to := q.Get("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		f.To = &ts
	}

	list, err := h.notifs.Filter(deviceID, f)
	if err != nil {
		h.logger.Error("filter notifications", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// UnreadCount handles GET /api/devices/{id}/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	count, err := h.notifs.UnreadCount(deviceID)
	if err != nil {
		h.logger.Error("unread count", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkRead handles POST /api/devices/{id}/notifications/{nid}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	if err := h.notifs.MarkRead(deviceID, r.PathValue("nid")); err != nil {
		h.logger.Error("mark read", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/devices/{id}/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	if err := h.notifs.MarkAllRead(deviceID); err != nil {
		h.logger.Error("mark all read", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/devices/{id}/notifications/{nid}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	if err := h.notifs.Delete(deviceID, r.PathValue("nid")); err != nil {
		h.logger.Error("delete notification", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAll handles DELETE /api/devices/{id}/notifications
func (h *NotificationHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	if err := h.notifs.ClearAll(deviceID); err != nil {
		h.logger.Error("clear notifications", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear notifications")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
