package memory

import (
	"context"
	"sync"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
)

// AuditLog keeps audit events in memory.
type AuditLog struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

// NewAuditLog constructs an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// FailWith makes subsequent Record calls return err.
func (a *AuditLog) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Record implements domain.AuditSink.
func (a *AuditLog) Record(ctx context.Context, event domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (a *AuditLog) Events() []domain.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}

// OfType filters recorded events by type.
func (a *AuditLog) OfType(eventType string) []domain.AuditEvent {
	var out []domain.AuditEvent
	for _, event := range a.Events() {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}
