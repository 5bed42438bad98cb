package catalog

import (
	"time"

	"github.com/okian/slipsync/pkg/logger"
)

// Option configures the Service.
type Option func(*Service)

// WithSource sets where Load reads the catalog from.
func WithSource(src Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithLocation sets the time zone used to render start times.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
