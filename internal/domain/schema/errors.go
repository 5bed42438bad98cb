package schema

import "errors"

// Sentinel kinds for schema errors.
var (
	ErrMalformed = errors.New("malformed json")
	ErrInvalid   = errors.New("schema validation failed")
)
