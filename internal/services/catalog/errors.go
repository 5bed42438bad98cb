package catalog

import "errors"

var (
	// ErrFetch is returned when the source cannot deliver the catalog.
	ErrFetch = errors.New("catalog fetch failed")
	// ErrNoSource is returned by Load when the service has no source.
	ErrNoSource = errors.New("catalog source not configured")
)
