package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so the sentinels below
// work with errors.Is regardless of message or wrapped cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
)

// Reminder pipeline codes
const (
	ErrDuplicateSchedule ErrorCode = iota + 2000
	ErrClaimConflict
	ErrRecipientNotFound
	ErrDelivery
	ErrStorage
	ErrIllegalTransition
)

// Sentinels for errors.Is checks.
var (
	NotFoundErr          = &AppError{Code: ErrNotFound, Message: "not found"}
	DuplicateSchedule    = &AppError{Code: ErrDuplicateSchedule, Message: "notification already scheduled for this time"}
	ClaimConflict        = &AppError{Code: ErrClaimConflict, Message: "job already claimed"}
	RecipientNotFound    = &AppError{Code: ErrRecipientNotFound, Message: "recipient not found"}
	DeliveryFailed       = &AppError{Code: ErrDelivery, Message: "delivery failed"}
	StorageFailed        = &AppError{Code: ErrStorage, Message: "storage error"}
	IllegalTransitionErr = &AppError{Code: ErrIllegalTransition, Message: "illegal job transition"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewDuplicateSchedule(err error) *AppError {
	return &AppError{
		Code:    ErrDuplicateSchedule,
		Message: DuplicateSchedule.Message,
		Err:     err,
	}
}

func NewClaimConflict(jobID fmt.Stringer) *AppError {
	return &AppError{
		Code:    ErrClaimConflict,
		Message: fmt.Sprintf("job %s already claimed", jobID),
	}
}

func NewRecipientNotFound(userID fmt.Stringer, err error) *AppError {
	return &AppError{
		Code:    ErrRecipientNotFound,
		Message: fmt.Sprintf("recipient %s not found", userID),
		Err:     err,
	}
}

func NewDelivery(err error) *AppError {
	return &AppError{
		Code:    ErrDelivery,
		Message: DeliveryFailed.Message,
		Err:     err,
	}
}

func NewStorage(op string, err error) *AppError {
	return &AppError{
		Code:    ErrStorage,
		Message: fmt.Sprintf("storage: %s", op),
		Err:     err,
	}
}

func NewIllegalTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrIllegalTransition,
		Message: fmt.Sprintf("illegal job transition %s -> %s", from, to),
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "forbidden",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
