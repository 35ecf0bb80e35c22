package availability

import (
	"context"
	"encoding/json"
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
	UpsertSchedule(ctx context.Context, userID uuid.UUID, dto UpsertScheduleDTO) (*UserSchedule, error)
	GetSchedule(ctx context.Context, userID uuid.UUID) (*UserSchedule, error)
	ExpandUser(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]VirtualInterval, error)

	CreateSlot(ctx context.Context, ownerID uuid.UUID, dto CreateSlotDTO) (*Slot, error)
	ListSlots(ctx context.Context, q ListSlotsQuery) ([]*Slot, error)
	BookSlot(ctx context.Context, bookerID, slotID uuid.UUID, dto BookSlotDTO) (*Slot, error)
	CancelSlot(ctx context.Context, actorID, slotID uuid.UUID) error
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

// UpsertSchedule handles PUT /users/me/availability.
func (h *Handler) UpsertSchedule(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto UpsertScheduleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sched, err := h.Service.UpsertSchedule(r.Context(), principal.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, sched)
}

// GetUserAvailability handles GET /users/{id}/availability?from&to.
func (h *Handler) GetUserAvailability(w http.ResponseWriter, r *http.Request) {
	if _, ok := internal.UserFromContext(r.Context()); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return
	}
	from, to, ok := windowParams(r)
	if !ok {
		h.WriteError(w, http.StatusBadRequest, "from and to must be RFC3339 timestamps with from < to")
		return
	}

	intervals, err := h.Service.ExpandUser(r.Context(), userID, from, to)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"intervals": intervals, "count": len(intervals)})
}

func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateSlotDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.Service.CreateSlot(r.Context(), principal.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, slot)
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	if _, ok := internal.UserFromContext(r.Context()); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := ListSlotsQuery{ProcessName: r.URL.Query().Get("process")}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		q.UserID = &id
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		q.From = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		q.To = &t
	}
	q.OnlyOpen = r.URL.Query().Get("open") == "true"

	slots, err := h.Service.ListSlots(r.Context(), q)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"slots": slots, "count": len(slots)})
}

func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	slotID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid slot ID")
		return
	}

	var dto BookSlotDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.Service.BookSlot(r.Context(), principal.ID, slotID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("BookSlot: slot booked", "slot_id", slotID, "user_id", principal.ID)
	h.WriteJSON(w, http.StatusOK, slot)
}

func (h *Handler) CancelSlot(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	slotID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid slot ID")
		return
	}

	if err := h.Service.CancelSlot(r.Context(), principal.ID, slotID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func windowParams(r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
