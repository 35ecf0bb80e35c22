package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidDatetime  ErrorCode = "INVALID_DATETIME"
	ErrCodeInvalidInterval  ErrorCode = "INVALID_INTERVAL"
	ErrCodeInvalidRecurrence ErrorCode = "INVALID_RECURRENCE"

	ErrCodeCalendarNotFound ErrorCode = "CALENDAR_NOT_FOUND"
	ErrCodeEventNotFound    ErrorCode = "EVENT_NOT_FOUND"
	ErrCodeRoomNotFound     ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	ErrCodeSlotNotFound     ErrorCode = "SLOT_NOT_FOUND"
	ErrCodeAttachmentNotFound ErrorCode = "ATTACHMENT_NOT_FOUND"
	ErrCodeOrgNotFound        ErrorCode = "ORGANIZATION_NOT_FOUND"
	ErrCodeDepartmentNotFound ErrorCode = "DEPARTMENT_NOT_FOUND"

	ErrCodeNotCalendarOwner     ErrorCode = "NOT_CALENDAR_OWNER"
	ErrCodeNotEventParticipant  ErrorCode = "NOT_EVENT_PARTICIPANT"
	ErrCodeRoomAccessDenied ErrorCode = "ROOM_ACCESS_DENIED"
	ErrCodeAdminOnly        ErrorCode = "ADMIN_ONLY"

	ErrCodeRoomConflict        ErrorCode = "ROOM_CONFLICT"
	ErrCodeParticipantConflict ErrorCode = "PARTICIPANT_CONFLICT"
	ErrCodeSlotAlreadyBooked   ErrorCode = "SLOT_ALREADY_BOOKED"
	ErrCodeDepartmentCycle     ErrorCode = "DEPARTMENT_CYCLE"
	ErrCodeEmailTaken          ErrorCode = "EMAIL_TAKEN"

	ErrCodeAttachmentTooLarge ErrorCode = "ATTACHMENT_TOO_LARGE"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTooManyAttempts    ErrorCode = "TOO_MANY_ATTEMPTS"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// WithMessage replaces the message while keeping type/code/status. Used for
// localized conflict witnesses.
func (e *AppError) WithMessage(message string) *AppError {
	clone := *e
	clone.Message = message
	return &clone
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrCalendarNotFound = NewNotFoundError("calendar not found", ErrCodeCalendarNotFound)
	ErrEventNotFound    = NewNotFoundError("event not found", ErrCodeEventNotFound)
	ErrRoomNotFound     = NewNotFoundError("room not found", ErrCodeRoomNotFound)
	ErrUserNotFound     = NewNotFoundError("user not found", ErrCodeUserNotFound)
	ErrSlotNotFound     = NewNotFoundError("availability slot not found", ErrCodeSlotNotFound)

	ErrNotCalendarOwner = NewForbiddenError("only the calendar owner may modify its events", ErrCodeNotCalendarOwner)
	ErrRoomAccessDenied = NewForbiddenError("no access to this room", ErrCodeRoomAccessDenied)
	ErrAdminOnly        = NewForbiddenError("administrator role required", ErrCodeAdminOnly)

	ErrSlotAlreadyBooked = NewConflictError("availability slot is already booked", ErrCodeSlotAlreadyBooked)
	ErrDepartmentCycle   = NewValidationError("department parent chain forms a cycle", ErrCodeDepartmentCycle)
	ErrEmailTaken        = NewConflictError("email is already registered", ErrCodeEmailTaken)

	ErrInvalidCredentials = NewUnauthorizedError("invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("user account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("token has expired", ErrCodeTokenExpired)
	ErrTooManyAttempts    = NewForbiddenError("too many attempts, try again later", ErrCodeTooManyAttempts)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
