package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/transport"
	"github.com/teamplan/scheduler/pkg/logger"
)

type ServiceAPI interface {
	CreateCalendar(ctx context.Context, actorID uuid.UUID, dto CreateCalendarDTO) (*Calendar, error)
	GetCalendar(ctx context.Context, actorID, calendarID uuid.UUID) (*Calendar, error)
	ListCalendars(ctx context.Context, actorID uuid.UUID) ([]*Calendar, error)
	UpdateCalendar(ctx context.Context, actorID, calendarID uuid.UUID, dto UpdateCalendarDTO) (*Calendar, error)
	DeleteCalendar(ctx context.Context, actorID, calendarID uuid.UUID) error
	AddMember(ctx context.Context, actorID, calendarID, userID uuid.UUID, dto MemberDTO) (*Member, error)
	GetMember(ctx context.Context, actorID, calendarID, userID uuid.UUID) (*Member, error)
	ListMembers(ctx context.Context, actorID, calendarID uuid.UUID) ([]*Member, error)
	RemoveMember(ctx context.Context, actorID, calendarID, userID uuid.UUID) error
	MemberAvailability(ctx context.Context, actorID, calendarID, userID uuid.UUID, from, to time.Time) (*MemberAvailability, error)
	ListConflicts(ctx context.Context, actorID, calendarID uuid.UUID, from, to time.Time) ([]ConflictEntry, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateCalendar(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateCalendarDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cal, err := h.Service.CreateCalendar(r.Context(), principal.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateCalendar: calendar created", "calendar_id", cal.ID, "owner_id", principal.ID)
	h.WriteJSON(w, http.StatusCreated, cal)
}

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	calendars, err := h.Service.ListCalendars(r.Context(), principal.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"calendars": calendars, "count": len(calendars)})
}

func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	calendarID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid calendar ID")
		return
	}

	cal, err := h.Service.GetCalendar(r.Context(), principal.ID, calendarID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, cal)
}

func (h *Handler) UpdateCalendar(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	calendarID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid calendar ID")
		return
	}

	var dto UpdateCalendarDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cal, err := h.Service.UpdateCalendar(r.Context(), principal.ID, calendarID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, cal)
}

func (h *Handler) DeleteCalendar(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	calendarID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid calendar ID")
		return
	}

	if err := h.Service.DeleteCalendar(r.Context(), principal.ID, calendarID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	principal, calendarID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}

	var dto MemberDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.Service.AddMember(r.Context(), principal.ID, calendarID, userID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, member)
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	principal, calendarID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}

	member, err := h.Service.GetMember(r.Context(), principal.ID, calendarID, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	calendarID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid calendar ID")
		return
	}

	members, err := h.Service.ListMembers(r.Context(), principal.ID, calendarID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	// Membership rows are keyed by (calendar, user); an update is an
	// upsert with a new role.
	h.AddMember(w, r)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	principal, calendarID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}

	if err := h.Service.RemoveMember(r.Context(), principal.ID, calendarID, userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MemberAvailability(w http.ResponseWriter, r *http.Request) {
	principal, calendarID, userID, ok := h.memberParams(w, r)
	if !ok {
		return
	}

	from, to, err := windowParams(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.Service.MemberAvailability(r.Context(), principal.ID, calendarID, userID, from, to)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	calendarID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid calendar ID")
		return
	}

	from, to, err := windowParams(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.Service.ListConflicts(r.Context(), principal.ID, calendarID, from, to)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"conflicts": entries, "count": len(entries)})
}

func (h *Handler) memberParams(w http.ResponseWriter, r *http.Request) (internal.Principal, uuid.UUID, uuid.UUID, bool) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return internal.Principal{}, uuid.Nil, uuid.Nil, false
	}
	calendarID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid calendar ID")
		return internal.Principal{}, uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return internal.Principal{}, uuid.Nil, uuid.Nil, false
	}
	return principal, calendarID, userID, true
}

func windowParams(r *http.Request) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, errInvalidWindow
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil || !from.Before(to) {
		return time.Time{}, time.Time{}, errInvalidWindow
	}
	return from.UTC(), to.UTC(), nil
}

var errInvalidWindow = errors.New("from and to must be valid RFC3339 timestamps with from < to")
