package repository

import (
	"time"

	"github.com/okian/slipsync/pkg/logger"
)

// AreaOption configures an Area.
type AreaOption func(*Area)

// WithOrigin tags published events with the writing context's id.
func WithOrigin(origin string) AreaOption {
	return func(a *Area) {
		a.origin = origin
	}
}

// WithNamespace tags published events so listeners of other namespaces
// (another session, for instance) ignore them.
func WithNamespace(ns string) AreaOption {
	return func(a *Area) {
		a.namespace = ns
	}
}

// WithPublisher announces writes to other contexts.
func WithPublisher(p Publisher) AreaOption {
	return func(a *Area) {
		a.publisher = p
	}
}

// WithAreaLogger sets the logger used for failures.
func WithAreaLogger(l logger.Logger) AreaOption {
	return func(a *Area) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) AreaOption {
	return func(a *Area) {
		if now != nil {
			a.now = now
		}
	}
}

// Option configures a Storage.
type Option func(*Storage)

// WithBackend selects the backend of a named area. Areas without one get a
// private MemoryBackend.
func WithBackend(name Name, b Backend) Option {
	return func(s *Storage) {
		if b != nil {
			s.backends[name] = b
		}
	}
}

// WithAreaNamespace sets the namespace of a named area.
func WithAreaNamespace(name Name, ns string) Option {
	return func(s *Storage) {
		s.namespaces[name] = ns
	}
}

// WithNotifier publishes writes of the shared areas (local and session).
func WithNotifier(p Publisher) Option {
	return func(s *Storage) {
		s.publisher = p
	}
}

// WithLogger sets the logger shared by every area.
func WithLogger(l logger.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.logger = l
		}
	}
}
