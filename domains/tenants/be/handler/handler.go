package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/logging"
)

// Handler exposes the tenant registry endpoints.
type Handler struct {
	registry *service.Registry
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(registry *service.Registry, logger *zap.Logger) *Handler {
	if registry == nil {
		panic("tenant registry is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{registry: registry, logger: logger}
}

// Routes mounts the registry endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tenants", h.list)
	r.Post("/tenants", h.register)
	r.Post("/tenants/delete", h.remove)
}

// tenantView is the serving shape of a registration. Tokens are never
// included in read responses.
type tenantView struct {
	ScopeType string `json:"scopeType"`
	ScopeName string `json:"scopeName"`
	Team      string `json:"team,omitempty"`
	IsActive  bool   `json:"isActive"`
}

func toView(t service.Tenant) tenantView {
	return tenantView{
		ScopeType: string(t.ScopeType),
		ScopeName: t.ScopeName,
		Team:      t.TeamSlug,
		IsActive:  t.IsActive,
	}
}

// list implements GET /api/tenants.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.registry.ListActive(r.Context())
	if err != nil {
		logging.FromRequest(r, h.logger).Error("list tenants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list tenants")
		return
	}

	views := make([]tenantView, 0, len(tenants))
	for _, t := range tenants {
		views = append(views, toView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

type registerRequest struct {
	ScopeType string `json:"scopeType"`
	ScopeName string `json:"scopeName"`
	Token     string `json:"token"`
	Team      string `json:"team"`
	IsActive  *bool  `json:"isActive"`
}

// register implements POST /api/tenants. The credential is probed upstream
// before anything is persisted.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scopeType, err := service.ParseScopeType(req.ScopeType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	t, err := h.registry.Register(r.Context(), service.Tenant{
		ScopeType: scopeType,
		ScopeName: req.ScopeName,
		TeamSlug:  req.Team,
		Token:     req.Token,
		IsActive:  active,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toView(t))
}

type removeRequest struct {
	ScopeType string `json:"scopeType"`
	ScopeName string `json:"scopeName"`
	Token     string `json:"token"`
	Team      string `json:"team"`
}

// remove implements POST /api/tenants/delete.
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scopeType, err := service.ParseScopeType(req.ScopeType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := service.Identity{ScopeType: scopeType, ScopeName: req.ScopeName, TeamSlug: req.Team}
	if err := h.registry.Remove(r.Context(), id, req.Token); err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "removed"})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidScope),
		errors.Is(err, service.ErrInvalidCredential),
		errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromRequest(r, h.logger).Error("tenant operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
