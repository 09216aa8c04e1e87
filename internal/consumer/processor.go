// Package consumer reads published audit events back off Kafka.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dhanushfitness/managementTool-sub002/internal/outbox"
)

// Reader is the subset of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler stores one decoded audit record.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is an audit record with its framing and headers unpacked.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger replaces the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetryDelay sets the pause after a failed fetch.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Processor) {
		p.retryDelay = d
	}
}

// Processor feeds audit records from one reader into a Handler.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     *log.Logger
	retryDelay time.Duration
}

// NewProcessor returns a Processor that logs under the [auditlog] prefix.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     log.New(log.Writer(), "[auditlog] ", log.LstdFlags|log.Lshortfile),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes until the reader reports cancellation. A record is committed once it is stored or
// once it proves undecodable; a failing handler leaves it uncommitted so the group redelivers it.
func (p *Processor) Run(ctx context.Context) error {
	for {
		raw, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			p.logger.Printf("fetch: %v", err)
			if !sleep(ctx, p.retryDelay) {
				return ctx.Err()
			}
			continue
		}

		if !p.process(ctx, raw) {
			continue
		}
		if err := p.reader.CommitMessages(ctx, raw); err != nil {
			p.logger.Printf("commit %s/%d@%d: %v", raw.Topic, raw.Partition, raw.Offset, err)
		}
	}
}

// process reports whether raw is finished with and may be committed.
func (p *Processor) process(ctx context.Context, raw kafka.Message) bool {
	msg, err := decodeMessage(raw)
	if err != nil {
		p.logger.Printf("skip undecodable record %s/%d@%d: %v", raw.Topic, raw.Partition, raw.Offset, err)
		recordDecodeError(raw.Topic)
		return true
	}

	if err := p.handler.Handle(ctx, msg); err != nil {
		p.logger.Printf("store %s for %s: %v", msg.EventType, msg.TenantID, err)
		recordHandlerError(msg)
		return false
	}
	recordProcessed(msg)
	return true
}

func decodeMessage(msg kafka.Message) (Message, error) {
	schemaID, payload, err := outbox.Unframe(msg.Value)
	if err != nil {
		return Message{}, fmt.Errorf("invalid payload (%d bytes): %w", len(msg.Value), err)
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType, ok := headers["event_type"]
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     eventType,
		TenantID:      headers["tenant_id"],
		SchemaSubject: headers["schema_subject"],
		SchemaID:      schemaID,
		Payload:       append(json.RawMessage(nil), payload...),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
