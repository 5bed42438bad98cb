package reactive

import "errors"

var (
	// ErrDisposed is returned by Observe on a disposed container.
	ErrDisposed = errors.New("container disposed")
	// ErrInvalidBinding is returned when a storage binding lacks a part.
	ErrInvalidBinding = errors.New("invalid storage binding")
	// ErrOptionType is returned when a typed option does not match the
	// container's value type.
	ErrOptionType = errors.New("option type mismatch")
)
