package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quorum-hq/quorum/internal/platform/httpx"
)

// PolicyHandler exposes the read-only policy catalog and the override
// admin endpoint.
type PolicyHandler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	validator *validator.Validate
}

// NewPolicyHandler builds a PolicyHandler instance.
func NewPolicyHandler(logger *slog.Logger, service *Service, guard Middleware) *PolicyHandler {
	return &PolicyHandler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers policy routes.
func (h *PolicyHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ActionPolicyView))
		r.Get("/", h.catalog)
		r.Get("/overrides", h.listOverrides)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ActionPolicyEdit))
		r.Put("/overrides", h.replaceOverrides)
	})
}

func (h *PolicyHandler) catalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Catalog())
}

func (h *PolicyHandler) listOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.service.Overrides(r.Context())
	if err != nil {
		h.logger.Error("list overrides", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if overrides == nil {
		overrides = []Override{}
	}
	httpx.JSON(w, http.StatusOK, overrides)
}

type overridePayload struct {
	Role    string `json:"role" validate:"required"`
	Action  string `json:"action" validate:"required"`
	Enabled bool   `json:"enabled"`
}

type replaceOverridesPayload struct {
	Overrides []overridePayload `json:"overrides" validate:"dive"`
}

func (h *PolicyHandler) replaceOverrides(w http.ResponseWriter, r *http.Request) {
	var payload replaceOverridesPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	overrides := make([]Override, 0, len(payload.Overrides))
	for _, ov := range payload.Overrides {
		role, ok := ParseRole(ov.Role)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role: "+ov.Role)
			return
		}
		action, ok := ParseAction(ov.Action)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown action: "+ov.Action)
			return
		}
		overrides = append(overrides, Override{Role: role, Action: action, Enabled: ov.Enabled})
	}
	if err := h.service.ApplyOverrides(r.Context(), overrides); err != nil {
		h.logger.Error("replace overrides", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"applied": len(overrides)})
}
