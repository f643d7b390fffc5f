package handlers

import (
	"net/http"

	"fitpass/internal/services"
	"fitpass/internal/utils"
)

// HealthChecker reports storage health. It is nil when running on the memory store.
type HealthChecker interface {
	Health() map[string]string
}

type CommonHandler struct {
	db HealthChecker
}

func NewCommonHandler(db HealthChecker) *CommonHandler {
	return &CommonHandler{db: db}
}

func (h *CommonHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "up", "store": "memory"})
		return
	}
	stats := h.db.Health()
	code := http.StatusOK
	if _, failed := stats["error"]; failed {
		code = http.StatusServiceUnavailable
	}
	utils.RespondWithJSON(w, code, stats)
}

type AdminHandler struct {
	resets services.PasswordResetService
}

func NewAdminHandler(resets services.PasswordResetService) *AdminHandler {
	return &AdminHandler{resets: resets}
}

// PurgeResetRequests deletes dead reset requests on demand.
func (h *AdminHandler) PurgeResetRequests(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.resets.Cleanup(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
