// Package service wires one context: its storage areas, the notification
// pipeline between contexts, and the betslip and catalog services.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/slipsync/internal/adapters/listener"
	"github.com/okian/slipsync/internal/adapters/mq/pubsub"
	eventqueue "github.com/okian/slipsync/internal/adapters/mq/queue"
	"github.com/okian/slipsync/internal/adapters/mq/worker"
	"github.com/okian/slipsync/internal/adapters/repository"
	"github.com/okian/slipsync/internal/config"
	"github.com/okian/slipsync/internal/domain/dedupe"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/services/betslip"
	"github.com/okian/slipsync/internal/services/catalog"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// Service is the composition root of one context.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	contextID string
	sessionID string

	injected injected

	// Built on Start from injected parts and the config.
	transport pubsub.Transport
	backends  map[repository.Name]repository.Backend
	source    catalog.Source

	redis *redis.Client
	db    *sql.DB
	kafka *pubsub.KafkaTransport

	deduper     dedupe.Deduper
	eventQueue  *eventqueue.InMemoryQueue
	dispatcher  *worker.Dispatcher
	unsubscribe func()

	storage  *repository.Storage
	listener *listener.Listener
	betslip  *betslip.Service
	catalog  *catalog.Service

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New creates a stopped Service. A nil cfg means defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:      cfg,
		injected: injected{backends: make(map[repository.Name]repository.Backend)},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.contextID = cfg.ContextID
	if s.contextID == "" {
		s.contextID = uuid.NewString()
	}
	s.sessionID = cfg.SessionID
	if s.sessionID == "" {
		s.sessionID = s.contextID
	}
	return s
}

// Start connects the backends and the transport, then starts the services.
// The catalog is loaded once; a failed load is logged and leaves it empty.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.GetOr(logger.Nop()).Named("app")
	}
	s.transport = s.injected.transport
	s.source = s.injected.source
	s.backends = make(map[repository.Name]repository.Backend, len(repository.Names))
	for name, b := range s.injected.backends {
		s.backends[name] = b
	}
	s.logger.Info(ctx, "starting context", logger.String("contextId", s.contextID), logger.String("origin", s.cfg.Origin))

	if err := s.connect(ctx); err != nil {
		s.release()
		return err
	}
	if err := s.buildBackends(ctx); err != nil {
		s.release()
		return err
	}
	if err := s.buildTransport(); err != nil {
		s.release()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.cfg.EventQueueSize),
		eventqueue.WithBufferSize(s.cfg.EventQueueSize),
	)

	storageOpts := []repository.Option{
		repository.WithAreaNamespace(repository.SessionStorage, s.sessionID),
		repository.WithNotifier(s.transport),
		repository.WithLogger(s.logger),
	}
	for name, b := range s.backends {
		storageOpts = append(storageOpts, repository.WithBackend(name, b))
	}
	s.storage = repository.New(s.contextID, storageOpts...)
	s.listener = listener.New(s.storage, listener.WithLogger(s.logger))

	s.dispatcher = worker.NewDispatcher(s.eventQueue, s.listener, worker.WithLogger(s.logger))
	go s.dispatcher.Run(runCtx)

	stop, err := s.transport.Subscribe(runCtx, s.receive)
	if err != nil {
		s.shutdownPipeline()
		s.release()
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.unsubscribe = stop

	s.betslip, err = betslip.New(ctx, s.storage, s.listener,
		betslip.WithKey(s.cfg.BetslipKey), betslip.WithLogger(s.logger))
	if err != nil {
		s.shutdownPipeline()
		s.release()
		return err
	}

	loc, err := s.cfg.Location()
	if err != nil {
		s.betslip.Dispose()
		s.shutdownPipeline()
		s.release()
		return err
	}
	if s.source == nil {
		s.source = sourceFromConfig(s.cfg)
	}
	s.catalog, err = catalog.New(ctx,
		catalog.WithSource(s.source),
		catalog.WithLocation(loc),
		catalog.WithLogger(s.logger),
	)
	if err != nil {
		s.betslip.Dispose()
		s.shutdownPipeline()
		s.release()
		return err
	}
	if s.source != nil {
		loadCtx, cancelLoad := ctx, context.CancelFunc(func() {})
		if d := s.cfg.CatalogTimeout(); d > 0 {
			loadCtx, cancelLoad = context.WithTimeout(ctx, d)
		}
		_ = s.catalog.Load(loadCtx)
		cancelLoad()
	}

	s.started = true
	s.logger.Info(ctx, "context started",
		logger.String("transport", s.transport.Name()),
		logger.String("localStorage", s.backends[repository.LocalStorage].Kind()),
		logger.String("sessionStorage", s.backends[repository.SessionStorage].Kind()),
		logger.Int("queueSize", s.cfg.EventQueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)
	return nil
}

// connect opens the clients the configured drivers need.
func (s *Service) connect(ctx context.Context) error {
	if s.missing(config.DriverRedis) {
		client, err := repository.ConnectRedis(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
		if err != nil {
			return err
		}
		s.redis = client
	}
	if s.missing(config.DriverPostgres) {
		db, err := repository.ConnectPostgres(ctx, s.cfg.PostgresDSN)
		if err != nil {
			return err
		}
		if err := repository.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("%w: %v", repository.ErrBackendUnavailable, err)
		}
		s.db = db
	}
	return nil
}

// missing reports whether a part configured with driver was not injected.
func (s *Service) missing(driver string) bool {
	if s.cfg.Transport == driver && s.transport == nil {
		return true
	}
	if s.cfg.LocalDriver == driver && s.backends[repository.LocalStorage] == nil {
		return true
	}
	return s.cfg.SessionDriver == driver && s.backends[repository.SessionStorage] == nil
}

func (s *Service) buildBackends(_ context.Context) error {
	for name, driver := range map[repository.Name]string{
		repository.LocalStorage:   s.cfg.LocalDriver,
		repository.SessionStorage: s.cfg.SessionDriver,
	} {
		if s.backends[name] != nil {
			continue
		}
		scope := s.cfg.Origin + ":" + string(name)
		if name == repository.SessionStorage {
			scope += ":" + s.sessionID
		}
		switch driver {
		case config.DriverMemory:
			s.backends[name] = repository.NewMemoryBackend()
		case config.DriverRedis:
			var opts []repository.RedisOption
			if name == repository.SessionStorage {
				opts = append(opts, repository.WithTTL(s.cfg.SessionTTL()))
			}
			s.backends[name] = repository.NewRedisBackend(s.redis, scope, opts...)
		case config.DriverPostgres:
			s.backends[name] = repository.NewPostgresBackend(s.db, scope)
		default:
			return fmt.Errorf("%w: %s driver %q", config.ErrInvalidConfig, name, driver)
		}
	}
	if s.backends[repository.MemoryStorage] == nil {
		s.backends[repository.MemoryStorage] = repository.NewMemoryBackend()
	}
	return nil
}

func (s *Service) buildTransport() error {
	if s.transport != nil {
		return nil
	}
	channel := pubsub.ChannelFor(s.cfg.Origin)
	switch s.cfg.Transport {
	case config.DriverMemory:
		s.transport = pubsub.NewMemoryTransport()
	case config.DriverRedis:
		s.transport = pubsub.NewRedisTransport(s.redis, channel, s.logger)
	case config.DriverPostgres:
		s.transport = pubsub.NewPostgresTransport(s.db, s.cfg.PostgresDSN, channel, s.logger)
	case config.DriverKafka:
		topic := s.cfg.KafkaTopic
		if topic == "" {
			topic = pubsub.TopicFor(s.cfg.Origin)
		}
		s.kafka = pubsub.NewKafkaTransport(s.cfg.KafkaBrokers, topic, s.logger)
		s.transport = s.kafka
	default:
		return fmt.Errorf("%w: transport %q", config.ErrInvalidConfig, s.cfg.Transport)
	}
	return nil
}

// sourceFromConfig returns the configured catalog source or nil.
func sourceFromConfig(cfg *config.Config) catalog.Source {
	switch {
	case cfg.CatalogFile != "":
		return catalog.FileSource{Path: cfg.CatalogFile}
	case cfg.CatalogURL != "":
		return catalog.NewHTTPSource(cfg.CatalogURL, cfg.CatalogTimeout())
	case cfg.CatalogS3Bucket != "":
		return catalog.S3Source{
			Client: catalog.NewS3Client(cfg.CatalogS3Region, cfg.CatalogS3URL, cfg.CatalogS3Access, cfg.CatalogS3Secret),
			Bucket: cfg.CatalogS3Bucket,
			Key:    cfg.CatalogS3Key,
		}
	}
	return nil
}

// receive runs on the transport goroutine. Redeliveries are dropped and a
// full queue drops the event but forgets its id so a retry is accepted.
func (s *Service) receive(ev model.StorageEvent) {
	ctx := context.Background()
	if s.deduper.SeenAndRecord(ctx, ev.ID) {
		metrics.RecordNotificationDropped("duplicate")
		return
	}
	if err := s.eventQueue.Offer(ctx, ev); err != nil {
		s.deduper.Unrecord(ctx, ev.ID)
		reason := "queue_full"
		if errors.Is(err, eventqueue.ErrClosed) {
			reason = "queue_closed"
		}
		metrics.RecordNotificationDropped(reason)
		s.logger.Warn(ctx, "notification dropped",
			logger.String("eventID", ev.ID),
			logger.String("key", ev.KeyString()),
			logger.Error(err),
		)
	}
}

// Stop disposes the services and closes every connection.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping context", logger.String("contextId", s.contextID))

	s.betslip.Dispose()
	s.catalog.Dispose()
	s.shutdownPipeline()
	s.release()

	s.started = false
	s.logger.Info(ctx, "context stopped")
}

func (s *Service) shutdownPipeline() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = s.dispatcher.Shutdown(ctx)
		cancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.eventQueue != nil {
		_ = s.eventQueue.Close()
	}
}

func (s *Service) release() {
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Warn(context.Background(), "close kafka writer", logger.Error(err))
		}
		s.kafka = nil
	}
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}

// ContextID returns the id stamped on this context's writes.
func (s *Service) ContextID() string { return s.contextID }

// Betslip returns the betslip service; nil before Start.
func (s *Service) Betslip() *betslip.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.betslip
}

// Catalog returns the catalog service; nil before Start.
func (s *Service) Catalog() *catalog.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Storage returns the storage areas of this context; nil before Start.
func (s *Service) Storage() *repository.Storage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage
}

// Listener returns the event listener of this context; nil before Start.
func (s *Service) Listener() *listener.Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener
}

// Started reports whether Start succeeded and Stop was not called since.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"contextId":  s.contextID,
		"origin":     s.cfg.Origin,
		"queueSize":  s.cfg.EventQueueSize,
		"dedupeSize": s.cfg.DedupeSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["transport"] = s.transport.Name()
	stats["queueLength"] = s.eventQueue.Len(ctx)
	stats["dedupeEntries"] = s.deduper.Size()
	stats["betslipType"] = s.betslip.CurrentType().String()
	size := 0
	if slip := s.betslip.Snapshot(); slip != nil {
		size = len(slip.Bets)
	}
	stats["betslipSize"] = size
	stats["catalogLoaded"] = s.catalog.Loaded()
	stats["catalogEvents"] = len(s.catalog.Snapshot())
	return stats
}
