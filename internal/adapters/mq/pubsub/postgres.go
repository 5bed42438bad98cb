package pubsub

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
)

const (
	// Postgres rejects NOTIFY payloads of 8000 bytes or more.
	maxNotifyPayload     = 7999
	minReconnectInterval = 10 * time.Millisecond
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PostgresTransport uses LISTEN/NOTIFY on one channel per origin.
type PostgresTransport struct {
	db      *sql.DB
	dsn     string
	channel string
	logger  logger.Logger
}

var _ Transport = (*PostgresTransport)(nil)

// NewPostgresTransport publishes through db and listens with a dedicated
// connection opened from dsn.
func NewPostgresTransport(db *sql.DB, dsn, channel string, log logger.Logger) *PostgresTransport {
	if log == nil {
		log = logger.Nop()
	}
	return &PostgresTransport{db: db, dsn: dsn, channel: channel, logger: log.Named("pubsub").Named("postgres")}
}

// Name implements Transport.
func (t *PostgresTransport) Name() string { return "postgres" }

// Publish implements Transport.
func (t *PostgresTransport) Publish(ctx context.Context, ev model.StorageEvent) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if _, err := t.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, t.channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify %s: %w", t.channel, err)
	}
	metrics.RecordNotificationPublished(ev.Area, t.Name())
	return nil
}

// Subscribe implements Transport.
func (t *PostgresTransport) Subscribe(ctx context.Context, handler Handler) (func(), error) {
	l := pq.NewListener(t.dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			t.logger.Warn(ctx, "listener", logger.Int("event", int(ev)), logger.Error(err))
		}
	})
	if err := l.Listen(t.channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", t.channel, err)
	}

	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(listenerPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = l.Close()
				return
			case <-quit:
				return
			case <-ticker.C:
				if err := l.Ping(); err != nil {
					t.logger.Warn(ctx, "ping", logger.Error(err))
				}
			case n, ok := <-l.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Reconnected; notifications sent meanwhile are lost.
					metrics.RecordNotificationDropped("reconnect")
					continue
				}
				ev, err := decode([]byte(n.Extra))
				if err != nil {
					metrics.RecordNotificationDropped("decode")
					t.logger.Error(ctx, "receive", logger.String("channel", t.channel), logger.Error(err))
					continue
				}
				metrics.RecordNotificationReceived(t.Name())
				handler(ev)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
			_ = l.Close()
		})
	}, nil
}
