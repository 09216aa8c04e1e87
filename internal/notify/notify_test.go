package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
)

func TestComposeSelectsContentByDays(t *testing.T) {
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	expired := Compose("Asha", "Gold", 0, end)
	require.Equal(t, KindExpired, expired.Kind)
	require.Contains(t, expired.Body, "expired on 2024-01-10")

	one := Compose("Asha", "Gold", 1, end)
	require.Equal(t, KindReminder, one.Kind)
	require.Equal(t, "Your membership expires in 1 day", one.Subject)

	three := Compose("", "", 3, end)
	require.Equal(t, 3, three.DaysUntilExpiry)
	require.Contains(t, three.Body, "Hi there")
	require.Contains(t, three.Subject, "3 days")
}

type fakeChannel struct {
	name  string
	reach bool
	err   error
	calls int
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Reaches(Recipient) bool { return f.reach }

func (f *fakeChannel) SendExpiryReminder(context.Context, Recipient, Message) error {
	f.calls++
	return f.err
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestDispatcherIsolatesChannelFailures(t *testing.T) {
	failing := &fakeChannel{name: "sms", reach: true, err: errors.New("gateway down")}
	working := &fakeChannel{name: "email", reach: true}
	skipped := &fakeChannel{name: "push"}

	d := NewDispatcher([]Channel{failing, working, skipped}, WithLogger(quietLogger()))
	delivery := d.Send(context.Background(), Recipient{MemberID: "m"}, Message{Kind: KindReminder})

	require.Equal(t, 2, delivery.Attempted)
	require.Equal(t, 1, delivery.Delivered)
	require.ErrorIs(t, delivery.Err, domain.ErrNotificationChannel)
	require.Equal(t, 1, working.calls)
	require.Zero(t, skipped.calls)
}

type blockingChannel struct{}

func (blockingChannel) Name() string { return "slow" }

func (blockingChannel) Reaches(Recipient) bool { return true }

func (blockingChannel) SendExpiryReminder(ctx context.Context, _ Recipient, _ Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcherBoundsChannelCalls(t *testing.T) {
	d := NewDispatcher([]Channel{blockingChannel{}}, WithTimeout(20*time.Millisecond), WithLogger(quietLogger()))

	start := time.Now()
	delivery := d.Send(context.Background(), Recipient{}, Message{})
	require.Less(t, time.Since(start), 2*time.Second)
	require.Zero(t, delivery.Delivered)
	require.ErrorIs(t, delivery.Err, domain.ErrNotificationChannel)
}

func TestWebhookChannelPostsPayload(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ch := NewSMSChannel(server.URL, "secret", time.Second)
	r := Recipient{OrganizationID: "org", MemberID: "m", Phone: "+911234567890"}
	require.True(t, ch.Reaches(r))
	require.False(t, ch.Reaches(Recipient{}))

	err := ch.SendExpiryReminder(context.Background(), r, Compose("Asha", "Gold", 3, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "+911234567890", got.To)
	require.Equal(t, 3, got.DaysUntil)
}

func TestWebhookChannelReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ch := NewPushChannel(server.URL, "", time.Second)
	err := ch.SendExpiryReminder(context.Background(), Recipient{PushToken: "tok"}, Message{})
	var deliveryErr *DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	require.Equal(t, http.StatusBadGateway, deliveryErr.Status)
}

func TestEmailChannelRendersMessage(t *testing.T) {
	ch := NewEmailChannel(SMTPConfig{Host: "smtp.local", Port: 25, From: "desk@gym.test", FromName: "Front Desk"})
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	ch.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	r := Recipient{Email: "asha@example.com"}
	require.True(t, ch.Reaches(r))
	require.NoError(t, ch.SendExpiryReminder(context.Background(), r, Compose("Asha", "Gold", 7, time.Now())))
	require.Equal(t, "smtp.local:25", gotAddr)
	require.Equal(t, []string{"asha@example.com"}, gotTo)
	require.True(t, strings.HasPrefix(gotMsg, "From: Front Desk <desk@gym.test>\r\n"))
	require.Contains(t, gotMsg, "Subject: Your membership expires in 7 days\r\n")
}

func TestEmailChannelUnconfigured(t *testing.T) {
	ch := NewEmailChannel(SMTPConfig{})
	require.False(t, ch.Reaches(Recipient{Email: "asha@example.com"}))
}
