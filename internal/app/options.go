package service

import (
	"github.com/okian/slipsync/internal/adapters/mq/pubsub"
	"github.com/okian/slipsync/internal/adapters/repository"
	"github.com/okian/slipsync/internal/services/catalog"
	"github.com/okian/slipsync/pkg/logger"
)

// injected holds parts supplied by options instead of the config.
type injected struct {
	transport pubsub.Transport
	backends  map[repository.Name]repository.Backend
	source    catalog.Source
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("app")
		}
	}
}

// WithTransport replaces the configured transport. Contexts sharing one
// pubsub.MemoryTransport behave like tabs of one browser.
func WithTransport(t pubsub.Transport) Option {
	return func(s *Service) {
		s.injected.transport = t
	}
}

// WithBackend replaces the configured backend of area name.
func WithBackend(name repository.Name, b repository.Backend) Option {
	return func(s *Service) {
		if b != nil {
			s.injected.backends[name] = b
		}
	}
}

// WithCatalogSource replaces the configured catalog source.
func WithCatalogSource(src catalog.Source) Option {
	return func(s *Service) {
		s.injected.source = src
	}
}
