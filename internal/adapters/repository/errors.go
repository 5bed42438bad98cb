package repository

import "errors"

// Sentinel kinds for key/value store errors.
var (
	ErrUnsupportedStorage = errors.New("unsupported storage")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
