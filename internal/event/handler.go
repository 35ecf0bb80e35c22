package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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
	CreateEvent(ctx context.Context, actorID uuid.UUID, dto CreateEventDTO) (*Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	ListEvents(ctx context.Context, q ListEventsQuery) ([]*Event, error)
	UpdateEvent(ctx context.Context, actorID, eventID uuid.UUID, scope string, dto UpdateEventDTO) (*Event, error)
	DeleteEvent(ctx context.Context, actorID, eventID uuid.UUID, scope string) error
	UpdateParticipantStatus(ctx context.Context, actorID, eventID, userID uuid.UUID, dto ParticipantStatusDTO) error

	AddAttachment(ctx context.Context, actorID, eventID uuid.UUID, filename, mimeType string, size int64, content io.Reader) (*Attachment, error)
	ListAttachments(ctx context.Context, actorID, eventID uuid.UUID) ([]*Attachment, error)
	OpenAttachment(ctx context.Context, actorID, eventID, attachmentID uuid.UUID) (*Attachment, io.ReadCloser, error)
	DeleteAttachment(ctx context.Context, actorID, eventID, attachmentID uuid.UUID) error

	AddComment(ctx context.Context, actorID, eventID uuid.UUID, dto CreateCommentDTO) (*Comment, error)
	ListComments(ctx context.Context, actorID, eventID uuid.UUID) ([]*Comment, error)
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

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateEvent: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := h.Service.CreateEvent(r.Context(), principal.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateEvent: event created",
		"event_id", ev.ID,
		"calendar_id", ev.CalendarID,
		"user_id", principal.ID)

	h.WriteJSON(w, http.StatusCreated, ev)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if _, ok := internal.UserFromContext(r.Context()); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	ev, err := h.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ev)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := internal.UserFromContext(r.Context()); !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := ListEventsQuery{Limit: 100}
	if raw := r.URL.Query().Get("calendar_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid calendar_id")
			return
		}
		q.CalendarID = &id
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

	events, err := h.Service.ListEvents(r.Context(), q)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	var dto UpdateEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := h.Service.UpdateEvent(r.Context(), principal.ID, eventID, scopeParam(r), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ev)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	if err := h.Service.DeleteEvent(r.Context(), principal.ID, eventID, scopeParam(r)); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("DeleteEvent: event deleted", "event_id", eventID, "user_id", principal.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateParticipantStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	var dto ParticipantStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.UpdateParticipantStatus(r.Context(), principal.ID, eventID, userID, dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]string{"response_status": dto.ResponseStatus})
}

// UploadAttachment accepts a multipart upload under the "file" field.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	if err := r.ParseMultipartForm(MaxAttachmentBytes); err != nil {
		h.WriteError(w, http.StatusRequestEntityTooLarge, "file too large or malformed form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	att, err := h.Service.AddAttachment(r.Context(), principal.ID, eventID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UploadAttachment: attachment stored",
		"event_id", eventID,
		"attachment_id", att.ID,
		"size_bytes", att.SizeBytes)

	h.WriteJSON(w, http.StatusCreated, att)
}

func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	atts, err := h.Service.ListAttachments(r.Context(), principal.ID, eventID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"attachments": atts, "count": len(atts)})
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, attachmentID, ok := h.attachmentParams(w, r)
	if !ok {
		return
	}

	att, rc, err := h.Service.OpenAttachment(r.Context(), principal.ID, eventID, attachmentID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	defer rc.Close()

	if att.MimeType != "" {
		w.Header().Set("Content-Type", att.MimeType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", att.SizeBytes))
	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Error("DownloadAttachment: stream interrupted", "attachment_id", attachmentID, "error", err)
	}
}

func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, attachmentID, ok := h.attachmentParams(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteAttachment(r.Context(), principal.ID, eventID, attachmentID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	var dto CreateCommentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.Service.AddComment(r.Context(), principal.ID, eventID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	comments, err := h.Service.ListComments(r.Context(), principal.ID, eventID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]any{"comments": comments, "count": len(comments)})
}

func (h *Handler) attachmentParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	eventID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid event ID")
		return uuid.Nil, uuid.Nil, false
	}
	attachmentID, err := uuid.Parse(chi.URLParam(r, "aid"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid attachment ID")
		return uuid.Nil, uuid.Nil, false
	}
	return eventID, attachmentID, true
}

// scopeParam reads the ?scope= query parameter, defaulting to single.
func scopeParam(r *http.Request) string {
	if scope := r.URL.Query().Get("scope"); scope != "" {
		return scope
	}
	return ScopeSingle
}
