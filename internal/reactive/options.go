package reactive

import (
	"github.com/okian/slipsync/internal/adapters/listener"
	"github.com/okian/slipsync/internal/adapters/repository"
	"github.com/okian/slipsync/pkg/logger"
)

type config struct {
	name     string
	logger   logger.Logger
	equal    any
	storage  *repository.Storage
	listener *listener.Listener
	binding  any
}

// Option configures a Container.
type Option func(*config)

// WithName names the container in logs and metrics.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the container logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEqual replaces the equality used to decide whether an update is a
// no-op. T must match the container type.
func WithEqual[T any](eq func(a, b T) bool) Option {
	return func(c *config) {
		if eq != nil {
			c.equal = eq
		}
	}
}

// WithStorage binds the container to a stored record of storage, following
// changes made by other contexts through l.
func WithStorage[T any](storage *repository.Storage, l *listener.Listener, b Binding[T]) Option {
	return func(c *config) {
		c.storage = storage
		c.listener = l
		c.binding = b
	}
}

type observeConfig[R any] struct {
	equal func(a, b R) bool
}

// ObserveOption configures one Observe call.
type ObserveOption[R any] func(*observeConfig[R])

// WithComparator replaces the equality used to suppress repeated
// projections.
func WithComparator[R any](eq func(a, b R) bool) ObserveOption[R] {
	return func(c *observeConfig[R]) {
		if eq != nil {
			c.equal = eq
		}
	}
}
