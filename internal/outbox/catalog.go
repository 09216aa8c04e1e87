package outbox

import (
	"strings"

	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
)

// Topics carrying audit traffic.
const (
	TopicAttendanceAudit     = "attendance.audit.v1"
	TopicMembershipLifecycle = "membership.lifecycle.v1"
)

// Route describes where an event type is published and which schema frames it.
type Route struct {
	Topic   string
	Subject string
	Schema  string
}

var schemaCatalog = map[string]Route{
	domain.AuditCheckIn:          attendanceRoute(),
	domain.AuditCheckInBiometric: attendanceRoute(),
	domain.AuditCheckOut:         attendanceRoute(),
	domain.AuditUpdated:          attendanceRoute(),
	domain.AuditExpired:          lifecycleRoute(),
	domain.AuditExpiryReminder:   lifecycleRoute(),
}

func attendanceRoute() Route {
	return Route{Topic: TopicAttendanceAudit, Subject: TopicAttendanceAudit + "-value", Schema: attendanceAuditSchema}
}

func lifecycleRoute() Route {
	return Route{Topic: TopicMembershipLifecycle, Subject: TopicMembershipLifecycle + "-value", Schema: membershipLifecycleSchema}
}

// RouteFor resolves the route of an event type. Unlisted attendance.* and membership.* types fall
// back to their family topic.
func RouteFor(eventType string) (Route, bool) {
	if r, ok := schemaCatalog[eventType]; ok {
		return r, true
	}
	switch {
	case strings.HasPrefix(eventType, "attendance."):
		return attendanceRoute(), true
	case strings.HasPrefix(eventType, "membership."):
		return lifecycleRoute(), true
	}
	return Route{}, false
}
