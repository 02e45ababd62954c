package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	tenants "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/logging"
)

// Config carries the read-path behavior flags.
type Config struct {
	// SaveTenantsOnRead upserts the caller's tenant into the registry on
	// every successful data request, so the sync job picks it up later.
	SaveTenantsOnRead bool
}

// Handler serves the data endpoints. Every read performs a write-through
// refresh first: validate, optionally persist the tenant, save the latest
// upstream snapshot, then query it back.
type Handler struct {
	registry *tenants.Registry
	factory  *service.Factory
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(registry *tenants.Registry, factory *service.Factory, cfg Config, logger *zap.Logger) *Handler {
	if registry == nil {
		panic("tenant registry is required")
	}
	if factory == nil {
		panic("data service factory is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{registry: registry, factory: factory, cfg: cfg, logger: logger}
}

// Routes mounts the data endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/{scopeType}/{scopeName}", func(r chi.Router) {
		r.Get("/copilot/usage", h.usage)
		r.Get("/copilot/metrics", h.metrics)
		r.Get("/copilot/billing/seats", h.seats)
		r.Route("/team/{teamSlug}", func(r chi.Router) {
			r.Get("/copilot/usage", h.usage)
			r.Get("/copilot/metrics", h.metrics)
			r.Get("/copilot/billing/seats", h.seats)
		})
	})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.admit(w, r)
	if !ok {
		return
	}

	svc := h.factory.UsageService(tenant)
	if _, err := svc.Save(r.Context()); err != nil {
		h.serverError(w, r, "refresh usage failed", err)
		return
	}

	records, err := svc.Query(r.Context(), queryOptions(r))
	if err != nil {
		h.serverError(w, r, "query usage failed", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.admit(w, r)
	if !ok {
		return
	}

	svc := h.factory.MetricsService(tenant)
	if _, err := svc.Save(r.Context()); err != nil {
		h.serverError(w, r, "refresh metrics failed", err)
		return
	}

	records, err := svc.Query(r.Context(), queryOptions(r))
	if err != nil {
		h.serverError(w, r, "query metrics failed", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) seats(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.admit(w, r)
	if !ok {
		return
	}

	svc := h.factory.SeatService(tenant)
	if _, err := svc.Save(r.Context()); err != nil {
		h.serverError(w, r, "refresh seats failed", err)
		return
	}

	opts := queryOptions(r)
	records, err := svc.GetSeatData(r.Context(), opts.Page, opts.PerPage)
	if err != nil {
		h.serverError(w, r, "query seats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// admit builds the transient tenant from the request, validates it upstream
// and optionally persists it. A persistence failure at this point is reported
// as a credential problem: it most commonly means the identity is already
// registered under a different token.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request) (tenants.Tenant, bool) {
	scopeType, err := tenants.ParseScopeType(chi.URLParam(r, "scopeType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return tenants.Tenant{}, false
	}

	scopeName := chi.URLParam(r, "scopeName")
	if scopeName == "" {
		writeError(w, http.StatusBadRequest, "scope name is required")
		return tenants.Tenant{}, false
	}

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "authorization bearer token is required")
		return tenants.Tenant{}, false
	}

	tenant := tenants.Tenant{
		ScopeType: scopeType,
		ScopeName: scopeName,
		TeamSlug:  chi.URLParam(r, "teamSlug"),
		Token:     token,
		IsActive:  true,
	}

	if err := h.registry.Validate(r.Context(), tenant); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return tenants.Tenant{}, false
	}

	if h.cfg.SaveTenantsOnRead {
		if _, err := h.registry.Upsert(r.Context(), tenant); err != nil {
			logging.FromRequest(r, h.logger).Warn("tenant auto-persistence failed", zap.Error(err))
			writeError(w, http.StatusBadRequest, "credential rejected for registered tenant")
			return tenants.Tenant{}, false
		}
	}

	return tenant, true
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromRequest(r, h.logger).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg+": "+err.Error())
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func queryOptions(r *http.Request) service.QueryOptions {
	q := r.URL.Query()
	return service.QueryOptions{
		Since:   q.Get("since"),
		Until:   q.Get("until"),
		Page:    intParam(q.Get("page"), 1),
		PerPage: intParam(q.Get("per_page"), 60),
	}
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
