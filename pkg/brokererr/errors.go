// Package brokererr defines the closed set of error kinds the broker
// surfaces to callers, each carrying the HTTP status and machine-readable
// code the §6 API contract promises.
package brokererr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds named in the spec's error-handling table.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindPartitionNotOwned Kind = "PARTITION_NOT_OWNED"
	KindServerBusy        Kind = "SERVER_BUSY"
	KindInvalidRequest    Kind = "INVALID_REQUEST"
	KindStorageFailure    Kind = "STORAGE_FAILURE"
)

// HTTPStatus returns the status code the §6 API contract maps this kind to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPartitionNotOwned:
		return 421
	case KindServerBusy:
		return http.StatusServiceUnavailable
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindStorageFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the concrete error type every recoverable broker failure wraps
// itself in. Callers recover the Kind with errors.As.
type Error struct {
	Kind    Kind
	Message string
	// OwnerNode is set only for PartitionNotOwned, carrying the redirect
	// hint the spec's error body requires.
	OwnerNode uint64
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func PartitionNotOwned(owner uint64, format string, args ...any) error {
	return &Error{Kind: KindPartitionNotOwned, Message: fmt.Sprintf(format, args...), OwnerNode: owner}
}

func ServerBusy(format string, args ...any) error {
	return &Error{Kind: KindServerBusy, Message: fmt.Sprintf(format, args...)}
}

func InvalidRequest(format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func StorageFailure(err error, format string, args ...any) error {
	return &Error{Kind: KindStorageFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// As recovers the broker Error from an error chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
