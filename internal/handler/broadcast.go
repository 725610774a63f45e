package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lostpaws/lostpaws/internal/broadcast"
)

type BroadcastHandler struct {
	coordinator *broadcast.Coordinator
	logger      *slog.Logger
}

func NewBroadcastHandler(c *broadcast.Coordinator, logger *slog.Logger) *BroadcastHandler {
	return &BroadcastHandler{coordinator: c, logger: logger}
}

// Broadcast handles POST /api/pets/{id}/broadcast
func (h *BroadcastHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	petID := r.PathValue("id")

	result, err := h.coordinator.Broadcast(r.Context(), petID)
	switch {
	case errors.Is(err, broadcast.ErrNotFound):
		writeError(w, http.StatusNotFound, "pet not found")
		return
	case errors.Is(err, broadcast.ErrNoLocation):
		writeError(w, http.StatusBadRequest, "pet has no reported location")
		return
	case err != nil:
		h.logger.Error("emergency broadcast", "pet", petID, "error", err)
		writeError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
