// Package notify delivers membership expiry reminders over the configured channels.
package notify

import (
	"fmt"
	"time"

	"github.com/dhanushfitness/managementTool-sub002/internal/calendar"
)

// Kind distinguishes advance reminders from the expired notice.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindExpired  Kind = "expired"
)

// Recipient identifies the member and the addresses each channel may use.
type Recipient struct {
	OrganizationID string
	MemberID       string
	Name           string
	Email          string
	Phone          string
	PushToken      string
}

// Message is the rendered notification.
type Message struct {
	Kind            Kind
	DaysUntilExpiry int
	Subject         string
	Body            string
}

// Compose renders the notification for daysUntilExpiry. Zero or less selects the expired notice.
// endDate is printed in its own location, so callers pass it in the organization's zone.
func Compose(name, planName string, daysUntilExpiry int, endDate time.Time) Message {
	if name == "" {
		name = "there"
	}
	if planName == "" {
		planName = "membership"
	}
	ends := endDate.Format(calendar.DateLayout)

	if daysUntilExpiry <= 0 {
		return Message{
			Kind:    KindExpired,
			Subject: "Your membership has expired",
			Body: fmt.Sprintf("Hi %s, your %s plan expired on %s. Renew at the front desk or in the app to keep training.",
				name, planName, ends),
		}
	}

	unit := "days"
	if daysUntilExpiry == 1 {
		unit = "day"
	}
	return Message{
		Kind:            KindReminder,
		DaysUntilExpiry: daysUntilExpiry,
		Subject:         fmt.Sprintf("Your membership expires in %d %s", daysUntilExpiry, unit),
		Body: fmt.Sprintf("Hi %s, your %s plan expires in %d %s on %s. Renew now to avoid interruption.",
			name, planName, daysUntilExpiry, unit, ends),
	}
}
