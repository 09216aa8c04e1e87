// Package outbox persists audit events transactionally and delivers them to Kafka.
package outbox

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

const defaultLease = time.Minute

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithLease sets how long a claimed row stays invisible to other dispatchers.
func WithLease(lease time.Duration) Option {
	return func(d *Dispatcher) {
		if lease > 0 {
			d.lease = lease
		}
	}
}

// Dispatcher drains the outbox table and publishes each row to its topic.
type Dispatcher struct {
	store     batchStore
	producer  messageWriter
	registry  schemaRegistrar
	logger    *log.Logger
	interval  time.Duration
	batchSize int
	lease     time.Duration

	mu        sync.Mutex
	schemaIDs map[string]int
}

// NewDispatcher constructs a Dispatcher over the outbox tables in pool.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, interval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	return newDispatcher(pgBatchStore{pool: pool}, producer, registry, interval, batchSize, opts...)
}

func newDispatcher(store batchStore, producer messageWriter, registry schemaRegistrar, interval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		producer:  producer,
		registry:  registry,
		logger:    log.New(log.Writer(), "[outbox] ", log.LstdFlags),
		interval:  interval,
		batchSize: batchSize,
		lease:     defaultLease,
		schemaIDs: make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls until ctx is cancelled. A full batch is followed immediately by the next one.
func (d *Dispatcher) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := d.flush(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("flush: %v", err)
		}
		if n == d.batchSize && err == nil {
			timer.Reset(0)
			continue
		}
		timer.Reset(d.interval)
	}
}

// flush handles one claimed batch and returns how many rows it settled.
func (d *Dispatcher) flush(ctx context.Context) (int, error) {
	claimed, err := d.store.Claim(ctx, d.batchSize, d.lease)
	if err != nil || len(claimed) == 0 {
		return 0, err
	}
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	routed, unroutable := splitRoutable(claimed)
	if len(unroutable) > 0 {
		if err := d.park(ctx, unroutable, ErrUnroutable); err != nil {
			return 0, err
		}
	}

	for _, topic := range topicOrder(routed) {
		batch := routed[topic]
		err := d.publish(ctx, topic, batch)
		if err == nil {
			deliveredCounter.Add(float64(len(batch)))
			continue
		}
		if ctx.Err() != nil {
			// Rows stay leased and are retried once the lease lapses.
			return 0, ctx.Err()
		}
		d.logger.Printf("publish %d events to %s: %v", len(batch), topic, err)
		if err := d.park(ctx, batch, err); err != nil {
			return 0, err
		}
	}

	if err := d.store.Complete(ctx, claimed); err != nil {
		return 0, err
	}
	return len(claimed), nil
}

func (d *Dispatcher) publish(ctx context.Context, topic string, batch []Message) error {
	records := make([]kafka.Message, 0, len(batch))
	now := time.Now().UTC()
	for _, msg := range batch {
		route, _ := RouteFor(msg.EventType)
		id, err := d.schemaID(ctx, msg.SchemaSubject, route.Schema)
		if err != nil {
			return fmt.Errorf("schema for %s: %w", msg.SchemaSubject, err)
		}
		records = append(records, kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: Frame(id, msg.Payload),
			Time:  now,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "tenant_id", Value: []byte(msg.TenantID)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			},
		})
	}
	return d.producer.WriteMessages(ctx, topic, records...)
}

func (d *Dispatcher) park(ctx context.Context, batch []Message, cause error) error {
	if err := d.store.Park(ctx, batch, cause); err != nil {
		return err
	}
	failedCounter.Add(float64(len(batch)))
	for _, msg := range batch {
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "\x00" + schema
	d.mu.Lock()
	id, ok := d.schemaIDs[key]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.schemaIDs[key] = id
	d.mu.Unlock()
	return id, nil
}

// splitRoutable groups rows by topic and sets aside event types without a route.
func splitRoutable(messages []Message) (map[string][]Message, []Message) {
	routed := make(map[string][]Message)
	var unroutable []Message
	for _, msg := range messages {
		if _, ok := RouteFor(msg.EventType); !ok {
			unroutable = append(unroutable, msg)
			continue
		}
		routed[msg.Topic] = append(routed[msg.Topic], msg)
	}
	return routed, unroutable
}

// topicOrder lists topics by their lowest event ID so older events publish first.
func topicOrder(routed map[string][]Message) []string {
	topics := make([]string, 0, len(routed))
	for topic := range routed {
		topics = append(topics, topic)
	}
	slices.SortFunc(topics, func(a, b string) int {
		return cmp.Compare(routed[a][0].EventID, routed[b][0].EventID)
	})
	return topics
}
