package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lostpaws/lostpaws/internal/alert"
	"github.com/lostpaws/lostpaws/internal/model"
	"github.com/lostpaws/lostpaws/internal/store"
)

type PetHandler struct {
	pets   *store.PetStore
	alerts *alert.Service
	logger *slog.Logger
}

func NewPetHandler(pets *store.PetStore, alerts *alert.Service, logger *slog.Logger) *PetHandler {
	return &PetHandler{pets: pets, alerts: alerts, logger: logger}
}

type createPetRequest struct {
	OwnerID     string   `json:"owner_id"`
	Name        string   `json:"name"`
	Species     string   `json:"species"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	RewardCents int64    `json:"reward_cents"`
	Urgency     string   `json:"urgency"`
}

// Create handles POST /api/pets
func (h *PetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.OwnerID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "owner_id and name are required")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(w, http.StatusBadRequest, "latitude and longitude must be provided together")
		return
	}
	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180) {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	if req.RewardCents < 0 {
		writeError(w, http.StatusBadRequest, "reward_cents must not be negative")
		return
	}
	if req.Urgency == "" {
		req.Urgency = model.UrgencyNormal
	}
	if !model.ValidUrgency(req.Urgency) {
		writeError(w, http.StatusBadRequest, "urgency must be low, normal, high, or critical")
		return
	}

	pet, err := h.pets.Create(req.OwnerID, req.Name, req.Species, req.Latitude, req.Longitude, req.RewardCents, req.Urgency)
	if err != nil {
		h.logger.Error("create pet", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create pet")
		return
	}

	h.alerts.Enqueue(alert.Event{Kind: alert.PetListChanged})
	writeJSON(w, http.StatusCreated, pet)
}

// List handles GET /api/pets
func (h *PetHandler) List(w http.ResponseWriter, r *http.Request) {
	pets, err := h.pets.ListActive()
	if err != nil {
		h.logger.Error("list pets", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pets")
		return
	}
	if pets == nil {
		pets = []model.Pet{}
	}
	writeJSON(w, http.StatusOK, pets)
}

// Get handles GET /api/pets/{id}
func (h *PetHandler) Get(w http.ResponseWriter, r *http.Request) {
	pet, err := h.pets.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get pet", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get pet")
		return
	}
	if pet == nil {
		writeError(w, http.StatusNotFound, "pet not found")
		return
	}
	writeJSON(w, http.StatusOK, pet)
}

// MarkFound handles POST /api/pets/{id}/found
func (h *PetHandler) MarkFound(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pet, err := h.pets.GetByID(id)
	if err != nil {
		h.logger.Error("get pet", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get pet")
		return
	}
	if pet == nil {
		writeError(w, http.StatusNotFound, "pet not found")
		return
	}

	if err := h.pets.MarkFound(id); err != nil {
		h.logger.Error("mark found", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark pet found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
