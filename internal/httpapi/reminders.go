package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"reminder-bot/internal/model"
	"reminder-bot/internal/service"
)

type createReminderRequest struct {
	Destination string    `json:"destination" validate:"required"`
	Text        string    `json:"text" validate:"required,max=4096"`
	RemindAt    time.Time `json:"remind_at" validate:"required"`
}

type snoozeRequest struct {
	// Bounded so the value fits time.Duration once converted to nanoseconds.
	DeltaSeconds int64 `json:"delta_seconds" validate:"required,min=-9223372036,max=9223372036"`
}

type reminderResponse struct {
	ID          uint      `json:"id"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	RemindAt    time.Time `json:"remind_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type idResponse struct {
	ID uint `json:"id"`
}

func toReminderResponse(r model.Reminder) reminderResponse {
	return reminderResponse{
		ID:          r.ID,
		Destination: r.Destination().String(),
		Text:        r.Text,
		RemindAt:    r.RemindAt.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (h *handler) createReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}
	dest, err := model.ParseDestination(req.Destination)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.reminders.CreateReminder(ctx, dest, req.Text, req.RemindAt)
	if err != nil {
		h.engineError(w, err, "create reminder")
		return
	}
	h.writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (h *handler) listReminders(w http.ResponseWriter, r *http.Request) {
	dest, err := model.ParseDestination(r.URL.Query().Get("destination"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reminders, err := h.reminders.ListReminders(r.Context(), dest)
	if err != nil {
		h.engineError(w, err, "list reminders")
		return
	}
	out := make([]reminderResponse, 0, len(reminders))
	for _, rem := range reminders {
		out = append(out, toReminderResponse(rem))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) cancelReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reminderID(w, r)
	if !ok {
		return
	}
	if err := h.reminders.CancelReminder(r.Context(), id); err != nil {
		h.engineError(w, err, "cancel reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) snoozeReminder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.reminderID(w, r)
	if !ok {
		return
	}
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	newID, err := h.reminders.SnoozeReminder(ctx, id, time.Duration(req.DeltaSeconds)*time.Second)
	if err != nil {
		h.engineError(w, err, "snooze reminder")
		return
	}
	h.writeJSON(w, http.StatusOK, idResponse{ID: newID})
}

func (h *handler) reminderID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		h.writeError(w, http.StatusBadRequest, "reminder id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func (h *handler) engineError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "reminder not found")
	case errors.Is(err, service.ErrInvalidReminder):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("op", op).Msg("engine call failed")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
