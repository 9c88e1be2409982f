package core

import "github.com/pkg/errors"

// ErrStorageQuota is returned by a store that ran out of its allotted space.
var ErrStorageQuota = errors.New("storage quota exceeded")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports a missing entity. Each domain package declares its own instance.
type NotFoundError struct {
	message string
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{message: msg}
}

func (err NotFoundError) Error() string {
	return err.message
}

// ConflictError reports an operation refused because of the current state of a resource.
type ConflictError struct {
	message string
}

func NewConflictError(msg string) error {
	return &ConflictError{message: msg}
}

func (err ConflictError) Error() string {
	return err.message
}

// ForbiddenError reports an action the current user is not allowed to perform.
type ForbiddenError struct {
	message string
}

func NewForbiddenError(msg string) error {
	return &ForbiddenError{message: msg}
}

func (err ForbiddenError) Error() string {
	return err.message
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*ForbiddenError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
