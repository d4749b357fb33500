// Package closurehttp exposes the closure workflow over HTTP. Every
// command is gated by the permission resolver before the workflow runs.
package closurehttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quorum-hq/quorum/internal/authz"
	"github.com/quorum-hq/quorum/internal/closure"
	"github.com/quorum-hq/quorum/internal/platform/httpx"
)

// Handler wires HTTP endpoints for closing and reopening containers.
type Handler struct {
	logger    *slog.Logger
	service   *closure.Service
	resolver  *authz.Resolver
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *closure.Service, resolver *authz.Resolver) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		resolver:  resolver,
		validator: validator.New(),
	}
}

// MountRoutes registers closure routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/meetings/{meetingID}/close", h.closeMeeting)
	r.Post("/meetings/{meetingID}/reopen", h.reopenMeeting)
	r.Post("/series/{seriesID}/close", h.closeSeries)
	r.Post("/series/{seriesID}/reopen", h.reopenSeries)
	r.Post("/occurrences/{occurrenceID}/close", h.closeOccurrence)
	r.Post("/occurrences/{occurrenceID}/reopen", h.reopenOccurrence)
	r.Get("/projects/{projectID}/close-targets", h.listCloseTargets)
}

type closePayload struct {
	Mode       string `json:"mode" validate:"required,oneof=move close"`
	TargetKind string `json:"target_kind" validate:"omitempty,oneof=meeting series"`
	TargetID   string `json:"target_id"`
}

func (p closePayload) input(containerID string) closure.CloseInput {
	in := closure.CloseInput{
		ContainerID: containerID,
		Mode:        closure.CloseMode(p.Mode),
	}
	if p.TargetID != "" {
		var target closure.ParentRef
		if p.TargetKind == "series" {
			target = closure.SeriesParent(p.TargetID)
		} else {
			target = closure.MeetingParent(p.TargetID)
		}
		in.Target = &target
	}
	return in
}

func (h *Handler) closeMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	meeting, err := h.service.GetMeeting(r.Context(), meetingID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !h.resolver.HasProjectPermission(identity, authz.ActionMeetingClose, meeting.ProjectID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "meeting.close denied")
		return
	}
	payload, ok := h.decodeClose(w, r)
	if !ok {
		return
	}
	result, err := h.service.CloseMeeting(r.Context(), payload.input(meetingID))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reopenMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	meeting, err := h.service.GetMeeting(r.Context(), meetingID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !h.resolver.HasProjectPermission(identity, authz.ActionMeetingClose, meeting.ProjectID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "meeting.close denied")
		return
	}
	if err := h.service.ReopenMeeting(r.Context(), meetingID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(closure.StatusScheduled)})
}

func (h *Handler) closeSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := chi.URLParam(r, "seriesID")
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	series, err := h.service.GetSeries(r.Context(), seriesID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !h.resolver.HasProjectPermission(identity, authz.ActionSeriesClose, series.ProjectID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "series.close denied")
		return
	}
	payload, ok := h.decodeClose(w, r)
	if !ok {
		return
	}
	result, err := h.service.CloseSeries(r.Context(), payload.input(seriesID))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reopenSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := chi.URLParam(r, "seriesID")
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	series, err := h.service.GetSeries(r.Context(), seriesID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !h.resolver.HasProjectPermission(identity, authz.ActionSeriesClose, series.ProjectID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "series.close denied")
		return
	}
	if err := h.service.ReopenSeries(r.Context(), seriesID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(closure.StatusScheduled)})
}

func (h *Handler) closeOccurrence(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceID")
	identity, projectID, ok := h.occurrenceScope(w, r, occurrenceID)
	if !ok {
		return
	}
	if !h.resolver.HasProjectPermission(identity, authz.ActionMeetingClose, projectID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "meeting.close denied")
		return
	}
	result, err := h.service.CloseOccurrence(r.Context(), occurrenceID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reopenOccurrence(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceID")
	identity, projectID, ok := h.occurrenceScope(w, r, occurrenceID)
	if !ok {
		return
	}
	if !h.resolver.HasProjectPermission(identity, authz.ActionMeetingClose, projectID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "meeting.close denied")
		return
	}
	if err := h.service.ReopenOccurrence(r.Context(), occurrenceID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(closure.OccurrenceScheduled)})
}

func (h *Handler) listCloseTargets(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	if !h.resolver.CanAccessProject(identity, projectID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "project access denied")
		return
	}
	exclude := closure.ParentRef{
		MeetingID: r.URL.Query().Get("exclude_meeting"),
		SeriesID:  r.URL.Query().Get("exclude_series"),
	}
	targets, err := h.service.ListCloseTargets(r.Context(), projectID, exclude)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if targets == nil {
		targets = []closure.Target{}
	}
	httpx.JSON(w, http.StatusOK, targets)
}

// occurrenceScope loads the occurrence's series to resolve the owning
// project for the permission check.
func (h *Handler) occurrenceScope(w http.ResponseWriter, r *http.Request, occurrenceID string) (authz.Identity, string, bool) {
	identity, ok := authz.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return authz.Identity{}, "", false
	}
	occ, err := h.service.GetOccurrence(r.Context(), occurrenceID)
	if err != nil {
		h.respondError(w, err)
		return authz.Identity{}, "", false
	}
	series, err := h.service.GetSeries(r.Context(), occ.SeriesID)
	if err != nil {
		h.respondError(w, err)
		return authz.Identity{}, "", false
	}
	return identity, series.ProjectID, true
}

func (h *Handler) decodeClose(w http.ResponseWriter, r *http.Request) (closePayload, bool) {
	var payload closePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return closePayload{}, false
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return closePayload{}, false
	}
	return payload, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, closure.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, closure.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, closure.ErrAlreadyClosed), errors.Is(err, closure.ErrNotClosed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("closure request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
