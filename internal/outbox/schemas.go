package outbox

const attendanceAuditSchema = `{
  "type": "object",
  "title": "AttendanceAudit",
  "properties": {
    "event_id": {"type": "string"},
    "event_type": {"type": "string"},
    "organization_id": {"type": "string"},
    "branch_id": {"type": "string"},
    "member_id": {"type": "string"},
    "attendance_id": {"type": "string"},
    "actor": {"type": "string"},
    "verdict": {"type": "string", "enum": ["success", "expired", "frozen", "blocked", "guest"]},
    "reason": {"type": "string"},
    "override": {"type": "boolean"},
    "details": {"type": "object", "additionalProperties": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["event_id", "event_type", "organization_id", "override", "occurred_at", "version"],
  "additionalProperties": false
}`

const membershipLifecycleSchema = `{
  "type": "object",
  "title": "MembershipLifecycle",
  "properties": {
    "event_id": {"type": "string"},
    "event_type": {"type": "string"},
    "organization_id": {"type": "string"},
    "branch_id": {"type": "string"},
    "member_id": {"type": "string"},
    "attendance_id": {"type": "string"},
    "actor": {"type": "string"},
    "verdict": {"type": "string"},
    "reason": {"type": "string"},
    "override": {"type": "boolean"},
    "details": {"type": "object", "additionalProperties": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["event_id", "event_type", "organization_id", "member_id", "occurred_at", "version"],
  "additionalProperties": false
}`
