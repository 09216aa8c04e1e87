package auth

// Scopes understood by the attendance API.
const (
	// ScopeAttendanceWrite allows staff check-in, check-out and reads.
	ScopeAttendanceWrite = "attendance:write"
	// ScopeAttendanceOverride allows manual overrides and after-the-fact corrections.
	ScopeAttendanceOverride = "attendance:override"
	// ScopeAttendanceDevice is granted to unattended biometric terminals.
	ScopeAttendanceDevice = "attendance:device"
	// ScopeMembershipAdmin allows triggering the expiry sweep.
	ScopeMembershipAdmin = "membership:admin"
)
