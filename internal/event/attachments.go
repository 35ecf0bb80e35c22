package event

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
)

// FileStore persists attachment content outside the database.
type FileStore interface {
	Store(ctx context.Context, eventID uuid.UUID, filename string, content io.Reader) (key string, size int64, err error)
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// AddAttachment stores the uploaded content and records it against the
// event. Both the file and the event's running total must stay within
// MaxAttachmentBytes.
func (s *Service) AddAttachment(ctx context.Context, actorID, eventID uuid.UUID, filename, mimeType string, size int64, content io.Reader) (*Attachment, error) {
	if filename == "" {
		return nil, internal.NewValidationError("file name is required", internal.ErrCodeValidationFailed)
	}
	if size > MaxAttachmentBytes {
		return nil, internal.NewValidationError(
			fmt.Sprintf("file exceeds the %d byte limit", MaxAttachmentBytes),
			internal.ErrCodeAttachmentTooLarge,
		)
	}

	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, ev, actorID); err != nil {
		return nil, err
	}

	used, err := s.repo.SumAttachmentBytes(ctx, eventID)
	if err != nil {
		return nil, internal.NewInternalError("failed to check attachment usage", err)
	}
	if used+size > MaxAttachmentBytes {
		return nil, internal.NewValidationError(
			fmt.Sprintf("event attachments exceed the %d byte limit", MaxAttachmentBytes),
			internal.ErrCodeAttachmentTooLarge,
		)
	}

	// The reader is capped one byte past the limit so an understated
	// Content-Length cannot smuggle an oversized file in.
	capped := io.LimitReader(content, MaxAttachmentBytes+1)
	key, written, err := s.files.Store(ctx, eventID, filename, capped)
	if err != nil {
		return nil, internal.NewInternalError("failed to store attachment", err)
	}
	if written > MaxAttachmentBytes || used+written > MaxAttachmentBytes {
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove oversized attachment", "key", key, "error", delErr)
		}
		return nil, internal.NewValidationError(
			fmt.Sprintf("file exceeds the %d byte limit", MaxAttachmentBytes),
			internal.ErrCodeAttachmentTooLarge,
		)
	}

	att := &Attachment{
		ID:         uuid.New(),
		EventID:    eventID,
		FileName:   filename,
		StoredPath: key,
		SizeBytes:  written,
		MimeType:   mimeType,
		UploadedBy: actorID,
	}
	if err := s.repo.CreateAttachment(ctx, att); err != nil {
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned attachment", "key", key, "error", delErr)
		}
		return nil, internal.NewInternalError("failed to record attachment", err)
	}
	return att, nil
}

func (s *Service) ListAttachments(ctx context.Context, actorID, eventID uuid.UUID) ([]*Attachment, error) {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, ev, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListAttachments(ctx, eventID)
}

// OpenAttachment returns the attachment row and a reader over its
// content. The caller closes the reader.
func (s *Service) OpenAttachment(ctx context.Context, actorID, eventID, attachmentID uuid.UUID) (*Attachment, io.ReadCloser, error) {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireAccess(ctx, ev, actorID); err != nil {
		return nil, nil, err
	}
	att, err := s.repo.GetAttachment(ctx, eventID, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Retrieve(ctx, att.StoredPath)
	if err != nil {
		return nil, nil, internal.NewInternalError("failed to open attachment", err)
	}
	return att, rc, nil
}

// DeleteAttachment removes the row and the stored file. Allowed for the
// uploader and the owning calendar's owner.
func (s *Service) DeleteAttachment(ctx context.Context, actorID, eventID, attachmentID uuid.UUID) error {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	att, err := s.repo.GetAttachment(ctx, eventID, attachmentID)
	if err != nil {
		return err
	}
	if att.UploadedBy != actorID {
		if err := s.requireOwner(ctx, ev.CalendarID, actorID); err != nil {
			return err
		}
	}
	if err := s.repo.DeleteAttachment(ctx, attachmentID); err != nil {
		return internal.NewInternalError("failed to delete attachment", err)
	}
	if err := s.files.Delete(ctx, att.StoredPath); err != nil {
		s.logger.Warn("failed to remove attachment file", "key", att.StoredPath, "error", err)
	}
	return nil
}

func (s *Service) AddComment(ctx context.Context, actorID, eventID uuid.UUID, dto CreateCommentDTO) (*Comment, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, ev, actorID); err != nil {
		return nil, err
	}
	c := &Comment{
		ID:       uuid.New(),
		EventID:  eventID,
		AuthorID: actorID,
		Body:     dto.Body,
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, internal.NewInternalError("failed to create comment", err)
	}
	return c, nil
}

func (s *Service) ListComments(ctx context.Context, actorID, eventID uuid.UUID) ([]*Comment, error) {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, ev, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListComments(ctx, eventID)
}

// requireAccess admits the owning calendar's owner and any invited
// participant.
func (s *Service) requireAccess(ctx context.Context, ev *Event, actorID uuid.UUID) error {
	for _, p := range ev.Participants {
		if p.UserID == actorID {
			return nil
		}
	}
	ownerID, err := s.calendars.GetOwnerID(ctx, ev.CalendarID)
	if err != nil {
		return err
	}
	if ownerID != actorID {
		return internal.ErrNotCalendarOwner
	}
	return nil
}
