// Package apperr defines sentinel errors shared across gtmkit packages.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrUnknownStep    = errors.New("unknown step")
	ErrInvalidProject = errors.New("invalid project")
)
