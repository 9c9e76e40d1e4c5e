package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"notebook/api/internal/auth"
	"notebook/api/internal/authpw"
	"notebook/api/internal/content"
	"notebook/api/internal/ordering"
	"notebook/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates service errors into an HTTP status and error body.
// Anything unrecognised is a 500 whose cause stays in the logs.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var moveErr *ordering.MoveError
	if errors.As(err, &moveErr) {
		details = map[string]any{"index": moveErr.Index, "id": moveErr.ID}
	}

	switch {
	case errors.Is(err, ordering.ErrInvalidMove):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationMessage(err, moveErr), details
	case errors.Is(err, ordering.ErrItemNotFound):
		return http.StatusNotFound, "ITEM_NOT_FOUND", "Item not found", details
	case errors.Is(err, ordering.ErrParentNotFound):
		return http.StatusUnprocessableEntity, "PARENT_NOT_FOUND", "Parent folder not found", details
	case errors.Is(err, ordering.ErrCycle):
		return http.StatusUnprocessableEntity, "INVALID_PARENT", "A folder cannot be moved into itself or a descendant", details
	case errors.Is(err, content.ErrInvalidDocument):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "CONFLICT", "Already exists", nil
	}
	return http.StatusInternalServerError, "INTERNAL", "Server error", nil
}

func validationMessage(err error, moveErr *ordering.MoveError) string {
	if moveErr != nil {
		return moveErr.Err.Error()
	}
	return err.Error()
}
