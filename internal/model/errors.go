package model

import "errors"

var (
	// ErrInsufficientData means the series is shorter than an indicator window.
	// The ticker is skipped, not retried.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrProviderUnavailable wraps network failures of external providers.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrMalformedResponse means an external response could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrPersistence wraps store failures.
	ErrPersistence = errors.New("persistence failure")
)
