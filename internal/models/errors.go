package models

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown property or blob ID.
var ErrNotFound = errors.New("not found")

// ValidationError reports missing or malformed required input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UploadError reports a blob store failure during upload.
type UploadError struct {
	Status int
	Msg    string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload failed: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("upload failed: %s", e.Msg)
}

func (e *UploadError) Unwrap() error { return e.Err }

// RetrievalError reports a blob store failure during retrieval. When the store
// reports the blob as missing, Err wraps ErrNotFound.
type RetrievalError struct {
	BlobID string
	Msg    string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval of blob %s failed: %s", e.BlobID, e.Msg)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// LedgerQueryError reports a ledger boundary failure. Callers must treat it as
// "cannot verify", never as "verified false".
type LedgerQueryError struct {
	Method string
	Err    error
}

func (e *LedgerQueryError) Error() string {
	return fmt.Sprintf("ledger query %s failed: %v", e.Method, e.Err)
}

func (e *LedgerQueryError) Unwrap() error { return e.Err }
