package config

import "errors"

var (
	// ErrInvalidConfig marks values the process cannot start with.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks an unreadable file or a value of the wrong type.
	ErrLoadConfig = errors.New("load config failed")
)
