package consumer

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/dhanushfitness/managementTool-sub002/internal/outbox"
)

func auditMessage(offset int64, payload string) kafka.Message {
	return kafka.Message{
		Topic:  "attendance.audit.v1",
		Offset: offset,
		Time:   time.Now().UTC(),
		Value:  outbox.Frame(42, []byte(payload)),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("attendance.checkin")},
			{Key: "tenant_id", Value: []byte("org-1")},
			{Key: "schema_subject", Value: []byte("attendance.audit.v1-value")},
		},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := `{"event_id":"evt-1","organization_id":"org-1"}`
	reader := &stubReader{messages: []kafka.Message{auditMessage(10, payload)}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "attendance.checkin", handler.last.EventType)
	require.Equal(t, "org-1", handler.last.TenantID)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, payload, string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{auditMessage(20, `{}`)}}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Zero(t, reader.commitCalls)
}

func TestProcessorCommitsPoisonPills(t *testing.T) {
	bad := auditMessage(30, `{}`)
	bad.Value = []byte{1}
	noHeader := auditMessage(31, `{}`)
	noHeader.Headers = nil

	reader := &stubReader{messages: []kafka.Message{bad, noHeader}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
}

func TestProcessorRetriesFetchErrors(t *testing.T) {
	reader := &stubReader{
		fetchErrs: []error{errors.New("broker unavailable")},
		messages:  []kafka.Message{auditMessage(40, `{}`)},
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithRetryDelay(time.Millisecond), WithLogger(log.New(testWriter{t}, "", 0))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.calls)
}

func TestParseAudit(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	msg := Message{EventType: "attendance.checkout", TenantID: "org-1", Timestamp: at,
		Payload: []byte(`{"event_id":"evt-1","organization_id":"org-1","member_id":"m-1","override":false}`)}

	audit, err := parseAudit(msg)
	require.NoError(t, err)
	require.Equal(t, "attendance.checkout", audit.EventType)
	require.True(t, audit.OccurredAt.Equal(at))

	msg.TenantID = "org-2"
	_, err = parseAudit(msg)
	require.ErrorIs(t, err, ErrInvalidAudit)

	_, err = parseAudit(Message{Payload: []byte(`not json`)})
	require.ErrorIs(t, err, ErrInvalidAudit)

	_, err = parseAudit(Message{Payload: []byte(`{"organization_id":"org-1"}`)})
	require.ErrorIs(t, err, ErrInvalidAudit)
}

type stubReader struct {
	fetchErrs   []error
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
