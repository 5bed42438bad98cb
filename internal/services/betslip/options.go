package betslip

import "github.com/okian/slipsync/pkg/logger"

// Option configures the Service.
type Option func(*Service)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Service) {
		if key != "" {
			s.key = key
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
