// Package handler exposes the administrative tenant endpoints. All routes
// here sit behind the static admin bearer token configured at process start.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendapro/vendapro-saas/domains/tenants/be/service"
	platformlogging "github.com/vendapro/vendapro-saas/platform/go/logging"
	"github.com/vendapro/vendapro-saas/platform/go/tenant"
)

type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /v1/admin/tenants.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.ListActive(r.Context())
	if err != nil {
		logger := platformlogging.FromRequest(r, h.logger)
		logger.Error("list tenants", zap.Error(err))
		if errors.Is(err, tenant.ErrRegistryUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": summaries})
}

// Invalidate handles POST /v1/admin/tenants/{tenantID}/invalidate.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if !h.svc.Invalidate(r.Context(), tenantID) {
		writeError(w, http.StatusNotFound, "no cached pool for tenant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WarmPools handles POST /v1/admin/pools/warm.
func (h *Handler) WarmPools(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.WarmPools(r.Context())
	if err != nil {
		logger := platformlogging.FromRequest(r, h.logger)
		logger.Error("warm pools", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
