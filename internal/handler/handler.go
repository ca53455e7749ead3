// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/flock/internal/model"
	"github.com/Shivanand-hulikatti/flock/internal/repository"
	"github.com/Shivanand-hulikatti/flock/internal/service"
)

// EventHandler holds all HTTP handlers for the event registration API.
type EventHandler struct {
	lifecycle *service.EventLifecycle
	admission *service.AdmissionController
	logger    *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(lifecycle *service.EventLifecycle, admission *service.AdmissionController, logger *slog.Logger) *EventHandler {
	return &EventHandler{lifecycle: lifecycle, admission: admission, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, model.Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.Envelope{Error: &model.ErrorBody{Code: code, Message: msg}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps the error taxonomy onto HTTP. Inconsistent is
// checked first so it is never mistaken for a retryable failure.
func (h *EventHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInconsistent):
		h.logger.ErrorContext(r.Context(), "inconsistent registration state", "error", err)
		writeError(w, http.StatusInternalServerError, "inconsistent",
			"registration could not be completed; an operator has been alerted")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "event not found")
	case errors.Is(err, repository.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", "you do not manage this event")
	case errors.Is(err, service.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, "invalid_spec", err.Error())
	case errors.Is(err, service.ErrDeadlinePassed):
		writeError(w, http.StatusUnprocessableEntity, "deadline_passed", "registration for this event has closed")
	case errors.Is(err, repository.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "capacity_exceeded", "event is fully booked")
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", "you are already registered for this event")
	case errors.Is(err, repository.ErrStorageUnavailable):
		h.logger.WarnContext(r.Context(), "storage unavailable", "error", err)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable, retry later")
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func principalID(r *http.Request) string {
	p, _ := PrincipalFromContext(r.Context())
	return p.ID
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_spec", "invalid request body: "+err.Error())
		return
	}

	event, err := h.lifecycle.Create(r.Context(), principalID(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, event)
}

// UpdateEvent handles PUT /events/{id}
// registeredCount and capacity in the body are rejected with 400.
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch model.EventPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_spec", "invalid request body: "+err.Error())
		return
	}

	event, err := h.lifecycle.Update(r.Context(), principalID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, event)
}

// CloseEvent handles POST /events/{id}/close
func (h *EventHandler) CloseEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.lifecycle.Close(r.Context(), principalID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.lifecycle.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	writeData(w, http.StatusOK, events)
}

// ListMyEvents handles GET /events/mine
func (h *EventHandler) ListMyEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.lifecycle.ListByOwner(r.Context(), principalID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeData(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, event)
}

// Register handles POST /events/{id}/registrations
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_spec", "invalid request body: "+err.Error())
		return
	}

	reg, err := h.admission.Register(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, reg)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.lifecycle.ListRegistrations(r.Context(), principalID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeData(w, http.StatusOK, regs)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
