// Package outbox publishes booking events written to event_logs inside the
// booking transaction. Delivery is at least once: a batch is marked
// published only after the broker accepted all of it.
package outbox

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Record struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	AggregateID   string
	Payload       []byte
	CreatedAt     time.Time
}

type Store interface {
	// ProcessBatch locks up to limit unpublished records, passes them to
	// publish and marks them published if publish returns nil. It returns
	// the number of records handed to publish.
	ProcessBatch(ctx context.Context, limit int, publish func(ctx context.Context, records []Record) error) (int, error)
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Relay struct {
	store    Store
	writer   MessageWriter
	log      zerolog.Logger
	interval time.Duration
	batch    int
}

func NewRelay(store Store, writer MessageWriter, log zerolog.Logger, cfg Config) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Relay{
		store:    store,
		writer:   writer,
		log:      log.With().Str("component", "outbox-relay").Logger(),
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
	}
}

// Run drains the outbox once, then again on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("shutdown signal received, stopping outbox relay")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Relay) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	total := 0
	for {
		n, err := r.PublishBatch(runCtx)
		if err != nil {
			r.log.Error().Err(err).Int("published", total).Msg("outbox publish failed")
			return
		}
		total += n
		if n < r.batch {
			break
		}
	}
	if total > 0 {
		r.log.Info().Int("published", total).Dur("took", time.Since(start)).Msg("outbox batch published")
	}
}

// PublishBatch publishes at most one batch and reports how many records it held.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	return r.store.ProcessBatch(ctx, r.batch, func(ctx context.Context, records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, rec := range records {
			msgs = append(msgs, toMessage(rec))
		}
		return r.writer.WriteMessages(ctx, msgs...)
	})
}

// toMessage uses the event type as topic and the doctor id as key, so one
// doctor's events stay ordered within a partition.
func toMessage(rec Record) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(rec.EventType)},
		{Key: "event_log_id", Value: []byte(strconv.FormatInt(rec.ID, 10))},
	}
	if rec.AppointmentID != nil {
		headers = append(headers, kafka.Header{Key: "appointment_id", Value: []byte(rec.AppointmentID.String())})
	}
	return kafka.Message{
		Topic:   topicFor(rec.EventType),
		Key:     []byte(rec.AggregateID),
		Value:   rec.Payload,
		Headers: headers,
		Time:    rec.CreatedAt,
	}
}

func topicFor(eventType string) string {
	return "clinic." + strings.ToLower(eventType)
}

// NewKafkaWriter builds a hash-balanced writer for a comma separated broker
// list. It returns nil when brokers is empty.
func NewKafkaWriter(brokers string) *kafka.Writer {
	addrs := SplitBrokers(brokers)
	if len(addrs) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func SplitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
