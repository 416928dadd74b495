package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification carried by every error
// returned across the usecase boundary.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindConflict         ErrorKind = "conflict"
	KindNotFound         ErrorKind = "not_found"
	KindUnconfirmedWrite ErrorKind = "unconfirmed_write"
	KindStorage          ErrorKind = "storage"
	KindAuthorization    ErrorKind = "authorization"
)

// KindedError is implemented by all domain errors.
type KindedError interface {
	error
	Kind() ErrorKind
}

// ValidationError reports caller input that failed a required-field or shape check.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Kind() ErrorKind { return KindValidation }

func (e ValidationError) Is(target error) bool {
	switch target.(type) {
	case ValidationError, *ValidationError:
		return true
	}
	return false
}

// ConflictError reports an optimistic-lock mismatch.
type ConflictError struct {
	ID string
}

func (e ConflictError) Error() string {
	if e.ID == "" {
		return "record was modified by another writer"
	}
	return fmt.Sprintf("case study %s was modified by another writer; re-fetch and resubmit", e.ID)
}

func (e ConflictError) Kind() ErrorKind { return KindConflict }

func (e ConflictError) Is(target error) bool {
	switch target.(type) {
	case ConflictError, *ConflictError:
		return true
	}
	return false
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Kind() ErrorKind { return KindNotFound }

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// UnconfirmedWriteError means the write was acknowledged by the store but
// could not be read back within the confirmation budget. The write may or
// may not have landed.
type UnconfirmedWriteError struct {
	ID string
}

func (e UnconfirmedWriteError) Error() string {
	return fmt.Sprintf("write to case study %s could not be confirmed; re-fetch before retrying", e.ID)
}

func (e UnconfirmedWriteError) Kind() ErrorKind { return KindUnconfirmedWrite }

func (e UnconfirmedWriteError) Is(target error) bool {
	switch target.(type) {
	case UnconfirmedWriteError, *UnconfirmedWriteError:
		return true
	}
	return false
}

// StorageError is an infrastructure failure. The cause is kept for logging
// but never rendered by Error.
type StorageError struct {
	Op        string
	Retryable bool
	Cause     error
}

func (e StorageError) Error() string {
	if e.Op == "" {
		return "storage unavailable"
	}
	return fmt.Sprintf("storage unavailable during %s", e.Op)
}

func (e StorageError) Kind() ErrorKind { return KindStorage }

func (e StorageError) Unwrap() error { return e.Cause }

func (e StorageError) Is(target error) bool {
	switch target.(type) {
	case StorageError, *StorageError:
		return true
	}
	return false
}

// AuthorizationError is returned when the access policy denies the request.
type AuthorizationError struct {
	Action string
}

func (e AuthorizationError) Error() string {
	if e.Action == "" {
		return "access denied"
	}
	return fmt.Sprintf("access denied: %s", e.Action)
}

func (e AuthorizationError) Kind() ErrorKind { return KindAuthorization }

func (e AuthorizationError) Is(target error) bool {
	switch target.(type) {
	case AuthorizationError, *AuthorizationError:
		return true
	}
	return false
}

// ErrDuplicateID is the cause of a storage error when an insert finds its
// primary key already stored.
var ErrDuplicateID = errors.New("record id already exists")

// Sentinels for errors.Is.
var (
	ErrValidation       = ValidationError{}
	ErrConflict         = ConflictError{}
	ErrNotFound         = NotFoundError{}
	ErrUnconfirmedWrite = UnconfirmedWriteError{}
	ErrStorage          = StorageError{}
	ErrAuthorization    = AuthorizationError{}
)

// IsRetryable reports whether err is a storage failure the caller may retry.
func IsRetryable(err error) bool {
	var se StorageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
