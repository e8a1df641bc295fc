package app

import "errors"

var (
	// ErrEmptyMessage rejects blank input before any remote call.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrProcessing covers provider unavailability, run failure, and run
	// timeout. Callers see one category and apply local fallback; the
	// wrapped cause keeps the distinct kind for logs and error details.
	ErrProcessing = errors.New("assistant processing failed")
	// ErrNotConfigured is returned while the service runs degraded without
	// provider credentials.
	ErrNotConfigured = errors.New("assistant not configured")
)
