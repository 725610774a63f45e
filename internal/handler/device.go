package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lostpaws/lostpaws/internal/alert"
	"github.com/lostpaws/lostpaws/internal/model"
	"github.com/lostpaws/lostpaws/internal/store"
)

type DeviceHandler struct {
	devices *store.DeviceStore
	tokens  *store.PushTokenStore
	alerts  *alert.Service
	logger  *slog.Logger
}

func NewDeviceHandler(devices *store.DeviceStore, tokens *store.PushTokenStore, alerts *alert.Service, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, tokens: tokens, alerts: alerts, logger: logger}
}

type settingsRequest struct {
	Enabled             bool             `json:"enabled"`
	RadiusKm            float64          `json:"radius_km"`
	NearbyPets          bool             `json:"nearby_pets"`
	Achievements        bool             `json:"achievements"`
	DailyChallenges     bool             `json:"daily_challenges"`
	EmergencyBroadcasts bool             `json:"emergency_broadcasts"`
	WeeklyDigest        bool             `json:"weekly_digest"`
	SoundEnabled        bool             `json:"sound_enabled"`
	QuietHours          model.QuietHours `json:"quiet_hours"`
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

// UpdateSettings handles PUT /api/devices/{id}/settings
func (h *DeviceHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Radius is clamped, not rejected
	if req.RadiusKm < model.MinRadiusKm {
		req.RadiusKm = model.MinRadiusKm
	}
	if req.RadiusKm > model.MaxRadiusKm {
		req.RadiusKm = model.MaxRadiusKm
	}

	if req.QuietHours.Enabled && (!validClock(req.QuietHours.Start) || !validClock(req.QuietHours.End)) {
		writeError(w, http.StatusBadRequest, "quiet hours must be HH:MM")
		return
	}
	if req.QuietHours.Start == "" {
		req.QuietHours.Start = "22:00"
	}
	if req.QuietHours.End == "" {
		req.QuietHours.End = "08:00"
	}

	profile := model.DefaultProfile(deviceID)
	profile.Enabled = req.Enabled
	profile.RadiusKm = req.RadiusKm
	profile.NearbyPets = req.NearbyPets
	profile.Achievements = req.Achievements
	profile.DailyChallenges = req.DailyChallenges
	profile.EmergencyBroadcasts = req.EmergencyBroadcasts
	profile.WeeklyDigest = req.WeeklyDigest
	profile.SoundEnabled = req.SoundEnabled
	profile.QuietHours = req.QuietHours

	if err := h.devices.Upsert(&profile); err != nil {
		h.logger.Error("upsert settings", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	saved, err := h.devices.Get(deviceID)
	if err != nil || saved == nil {
		h.logger.Error("reload settings", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GetSettings handles GET /api/devices/{id}/settings
func (h *DeviceHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	profile, err := h.devices.Get(deviceID)
	if err != nil {
		h.logger.Error("get settings", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if profile == nil {
		defaults := model.DefaultProfile(deviceID)
		writeJSON(w, http.StatusOK, &defaults)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UpdateLocation handles POST /api/devices/{id}/location
func (h *DeviceHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	if err := h.devices.EnsureExists(deviceID); err != nil {
		h.logger.Error("ensure device", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save location")
		return
	}
	if err := h.devices.UpdateLocation(deviceID, req.Latitude, req.Longitude, time.Now().UTC()); err != nil {
		h.logger.Error("update location", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save location")
		return
	}

	h.alerts.Enqueue(alert.Event{Kind: alert.LocationChanged, DeviceID: deviceID})
	w.WriteHeader(http.StatusNoContent)
}

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

// Snooze handles POST /api/devices/{id}/snooze
func (h *DeviceHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Minutes <= 0 {
		writeError(w, http.StatusBadRequest, "minutes must be positive")
		return
	}

	if err := h.devices.EnsureExists(deviceID); err != nil {
		h.logger.Error("ensure device", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to snooze")
		return
	}
	until := time.Now().UTC().Add(time.Duration(req.Minutes) * time.Minute)
	if err := h.devices.Snooze(deviceID, until); err != nil {
		h.logger.Error("snooze", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to snooze")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snoozed_until": until})
}

// ClearSnooze handles DELETE /api/devices/{id}/snooze
func (h *DeviceHandler) ClearSnooze(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	if err := h.devices.ClearSnooze(deviceID); err != nil {
		h.logger.Error("clear snooze", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear snooze")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerTokenRequest struct {
	Token        string                     `json:"token"`
	DeviceType   string                     `json:"device_type"`
	Subscription *model.WebPushSubscription `json:"subscription"`
}

// RegisterToken handles POST /api/devices/{id}/push-token. Registering a
// token is what grants push permission.
func (h *DeviceHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	var req registerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !model.ValidDeviceType(req.DeviceType) {
		writeError(w, http.StatusBadRequest, "device_type must be ios, android, or web")
		return
	}

	token := req.Token
	if req.DeviceType == model.DeviceTypeWeb {
		if req.Subscription == nil || req.Subscription.Endpoint == "" || req.Subscription.P256dh == "" || req.Subscription.Auth == "" {
			writeError(w, http.StatusBadRequest, "web registration requires a subscription with endpoint, p256dh, and auth")
			return
		}
		raw, err := json.Marshal(req.Subscription)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid subscription")
			return
		}
		token = string(raw)
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.devices.EnsureExists(deviceID); err != nil {
		h.logger.Error("ensure device", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register token")
		return
	}
	saved, err := h.tokens.Register(deviceID, token, req.DeviceType)
	if err != nil {
		h.logger.Error("register token", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register token")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// Test handles POST /api/devices/{id}/test
func (h *DeviceHandler) Test(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	h.alerts.Enqueue(alert.Event{Kind: alert.TestRequested, DeviceID: deviceID})
	w.WriteHeader(http.StatusAccepted)
}
