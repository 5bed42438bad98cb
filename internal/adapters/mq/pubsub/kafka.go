package pubsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
)

const (
	kafkaMaxBytes = 10e6
	kafkaBackoff  = 250 * time.Millisecond
)

// TopicFor returns the notification topic of an origin. Kafka topic names
// only allow [a-zA-Z0-9._-].
func TopicFor(origin string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, origin)
	return clean + ".storage"
}

// KafkaTransport publishes to one topic per origin. Every subscription
// reads the whole topic through its own consumer group, starting at the
// tail, so each context sees every change made after it joined.
type KafkaTransport struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
	logger  logger.Logger
}

var _ Transport = (*KafkaTransport)(nil)

// NewKafkaTransport creates a transport on topic. brokers is a comma
// separated list of host:port.
func NewKafkaTransport(brokers, topic string, log logger.Logger) *KafkaTransport {
	if log == nil {
		log = logger.Nop()
	}
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	return &KafkaTransport{
		brokers: addrs,
		topic:   topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(addrs...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		logger: log.Named("pubsub").Named("kafka"),
	}
}

// Name implements Transport.
func (t *KafkaTransport) Name() string { return "kafka" }

// Publish implements Transport. Messages are keyed by area and key so
// writes to one key stay ordered within a partition.
func (t *KafkaTransport) Publish(ctx context.Context, ev model.StorageEvent) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.Area + ":" + ev.KeyString()),
		Value: payload,
		Time:  ev.At,
	}
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", t.topic, err)
	}
	metrics.RecordNotificationPublished(ev.Area, t.Name())
	return nil
}

// Subscribe implements Transport.
func (t *KafkaTransport) Subscribe(ctx context.Context, handler Handler) (func(), error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     t.brokers,
		Topic:       t.topic,
		GroupID:     "slipsync-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    kafkaMaxBytes,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			m, err := reader.ReadMessage(runCtx)
			if err != nil {
				if runCtx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				t.logger.Error(runCtx, "receive", logger.String("topic", t.topic), logger.Error(err))
				select {
				case <-runCtx.Done():
					return
				case <-time.After(kafkaBackoff):
				}
				continue
			}
			ev, err := decode(m.Value)
			if err != nil {
				metrics.RecordNotificationDropped("decode")
				t.logger.Error(runCtx, "receive", logger.String("topic", t.topic), logger.Error(err))
				continue
			}
			metrics.RecordNotificationReceived(t.Name())
			handler(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			if err := reader.Close(); err != nil {
				t.logger.Warn(context.Background(), "close reader", logger.Error(err))
			}
		})
	}, nil
}

// Close flushes and closes the writer.
func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
