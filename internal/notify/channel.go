package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
	"github.com/dhanushfitness/managementTool-sub002/internal/observability"
)

// Channel is one delivery mechanism for expiry notifications.
type Channel interface {
	Name() string
	// Reaches reports whether the channel is configured and the recipient has an address for it.
	Reaches(r Recipient) bool
	SendExpiryReminder(ctx context.Context, r Recipient, m Message) error
}

// Delivery summarises one fan-out across channels.
type Delivery struct {
	Attempted int
	Delivered int
	Err       error
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithTimeout bounds every individual channel call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithRateLimit caps outbound sends per second across all channels.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// Dispatcher fans a message out to every channel that can reach the recipient.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *log.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels: channels,
		timeout:  10 * time.Second,
		logger:   log.New(log.Writer(), "[notify] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers m to r on each reachable channel. Channel failures are isolated from each other and
// reported together in Delivery.Err, each wrapping domain.ErrNotificationChannel.
func (d *Dispatcher) Send(ctx context.Context, r Recipient, m Message) Delivery {
	var (
		result Delivery
		errs   []error
	)
	for _, ch := range d.channels {
		if !ch.Reaches(r) {
			continue
		}
		result.Attempted++

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", domain.ErrNotificationChannel, ch.Name(), err))
				break
			}
		}

		err := d.sendOne(ctx, ch, r, m)
		observability.RecordNotification(ch.Name(), err)
		if err != nil {
			d.logger.Printf("channel %s failed for member %s: %v", ch.Name(), r.MemberID, err)
			errs = append(errs, fmt.Errorf("%w: %s: %v", domain.ErrNotificationChannel, ch.Name(), err))
			continue
		}
		result.Delivered++
	}
	result.Err = errors.Join(errs...)
	return result
}

func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, r Recipient, m Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return ch.SendExpiryReminder(sendCtx, r, m)
}
