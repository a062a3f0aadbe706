package rekoerr

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed field at an API boundary.
// It is never retried; HTTP handlers translate it to a 400 response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// StorageError wraps a filesystem failure and carries the path that was
// being created, read or written when the failure occurred.
type StorageError struct {
	Op   string // "create", "read", "write", "rename", "list"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an absent project, section, document or rule.
// Lenient reads return empty result sets instead; this type is reserved for
// targeted lookups where the caller named the thing it expected to exist.
type NotFoundError struct {
	Kind string // "project", "section", "document", "rule"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// UpstreamError reports a failure talking to an external source, currently
// only the rules-template fetch. Callers fall back to local defaults and the
// error never corrupts persisted archive content.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream fetch failed for %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is or wraps a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsUpstream reports whether err is or wraps an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// NewValidation creates a ValidationError for a named field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewStorage wraps a filesystem error with the operation and path.
func NewStorage(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// NewNotFound creates a NotFoundError for a named resource.
func NewNotFound(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// NewUpstream wraps a network or API error with the URL that failed.
func NewUpstream(url string, err error) *UpstreamError {
	return &UpstreamError{URL: url, Err: err}
}
