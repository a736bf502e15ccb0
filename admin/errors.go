package admin

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable API error code.
type Code string

const (
	CodeUnknown  Code = "UNKNOWN"
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
	CodeInvalid  Code = "INVALID"
)

// CodeForStatus maps an HTTP status to a Code.
func CodeForStatus(status int) Code {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeInvalid
	default:
		return CodeUnknown
	}
}

// APIError is a rejected collaborator call. Conflicts carry the server's
// business-rule message (e.g. removing the last credential while the system
// lock is active).
type APIError struct {
	Op      string
	Status  int
	Code    Code
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s (%d)", e.Op, e.Code, e.Status)
	}
	return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Code, e.Status, e.Message)
}

// Is reports whether target matches by code.
func (e *APIError) Is(target error) bool {
	if t, ok := target.(*APIError); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrNotFound = &APIError{Code: CodeNotFound}
	ErrConflict = &APIError{Code: CodeConflict}
	ErrInvalid  = &APIError{Code: CodeInvalid}
)

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
