package repository

import (
	"fmt"

	"github.com/okian/slipsync/pkg/logger"
)

// Storage resolves areas by name for one context.
type Storage struct {
	contextID  string
	backends   map[Name]Backend
	namespaces map[Name]string
	publisher  Publisher
	logger     logger.Logger
	areas      map[Name]*Area
}

// New builds the areas of contextID. memoryStorage never publishes.
func New(contextID string, opts ...Option) *Storage {
	s := &Storage{
		contextID:  contextID,
		backends:   make(map[Name]Backend),
		namespaces: make(map[Name]string),
		logger:     logger.GetOr(logger.Nop()),
		areas:      make(map[Name]*Area, len(Names)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range Names {
		b, ok := s.backends[name]
		if !ok {
			b = NewMemoryBackend()
		}
		areaOpts := []AreaOption{
			WithOrigin(contextID),
			WithNamespace(s.namespaces[name]),
			WithAreaLogger(s.logger),
		}
		if name != MemoryStorage && s.publisher != nil {
			areaOpts = append(areaOpts, WithPublisher(s.publisher))
		}
		s.areas[name] = NewArea(name, b, areaOpts...)
	}
	return s
}

// ContextID returns the id stamped on this context's writes.
func (s *Storage) ContextID() string { return s.contextID }

// From returns the area called name or ErrUnsupportedStorage.
func (s *Storage) From(name Name) (*Area, error) {
	a, ok := s.areas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStorage, name)
	}
	return a, nil
}

// MustFrom is From for names known at compile time.
func (s *Storage) MustFrom(name Name) *Area {
	a, err := s.From(name)
	if err != nil {
		panic(err)
	}
	return a
}
