// Package handler exposes login, logout and profile over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vendapro/vendapro-saas/domains/auth/be/service"
	platformlogging "github.com/vendapro/vendapro-saas/platform/go/logging"
	"github.com/vendapro/vendapro-saas/platform/go/tenant/resolver"
)

// Handler wires the auth service to its HTTP endpoints.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("auth service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

type loginRequest struct {
	TaxID    string `json:"taxId"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	DisplayName string    `json:"displayName"`
	UserName    string    `json:"userName"`
	IsAdmin     bool      `json:"isAdmin"`
	IsManager   bool      `json:"isManager"`
}

// Login handles POST /v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TaxID) == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "taxId, username and password are required")
		return
	}

	out, err := h.svc.Login(r.Context(), service.LoginInput{
		TaxID:    req.TaxID,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTemporarilyUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		case errors.Is(err, service.ErrInvalidLogin):
			// One message for unknown tenant, suspended tenant and bad
			// password; the split exists only in internal logs.
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			logger := platformlogging.FromRequest(r, h.logger)
			logger.Error("login failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:       out.Token,
		ExpiresAt:   out.ExpiresAt,
		DisplayName: out.DisplayName,
		UserName:    out.UserName,
		IsAdmin:     out.IsAdmin,
		IsManager:   out.IsManager,
	})
}

// Logout handles POST /v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	h.svc.Logout(token)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /v1/auth/me for an authenticated session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := resolver.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.svc.Profile(r.Context(), session)
	if err != nil {
		logger := platformlogging.FromRequest(r, h.logger)
		logger.Error("load profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
