// Package api exposes the attendance engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dhanushfitness/managementTool-sub002/internal/auth"
	"github.com/dhanushfitness/managementTool-sub002/internal/domain"
	"github.com/dhanushfitness/managementTool-sub002/internal/expiry"
	"github.com/dhanushfitness/managementTool-sub002/internal/scheduler"
)

// SweepTrigger starts an out-of-schedule expiry sweep.
type SweepTrigger interface {
	Trigger(ctx context.Context) (expiry.Summary, error)
}

// Handler coordinates HTTP requests with the attendance service.
type Handler struct {
	service *domain.Service
	sweeps  SweepTrigger
}

// NewHandler builds a Handler. sweeps may be nil, in which case the trigger endpoint reports 503.
func NewHandler(service *domain.Service, sweeps SweepTrigger) *Handler {
	return &Handler{service: service, sweeps: sweeps}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/attendance/check-in", h.checkIn)
		r.Post("/attendance/fingerprint", h.fingerprintCheckIn)
		r.Post("/attendance/{attendanceID}/check-out", h.checkOut)
		r.Patch("/attendance/{attendanceID}", h.updateAttendance)
		r.Post("/membership/expiry-sweep", h.triggerSweep)
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}

	var req CheckInRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.MemberID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "member_id is required")
		return
	}
	if req.AllowManualOverride && !claims.HasScope(auth.ScopeAttendanceOverride) {
		writeError(w, http.StatusForbidden, "forbidden", "scope attendance:override required")
		return
	}

	actor := claims.Subject

	result, err := h.service.CheckIn(r.Context(), domain.CheckInRequest{
		OrganizationID:      claims.OrganizationID,
		BranchID:            branchFor(claims, req.BranchID),
		MemberID:            req.MemberID,
		Method:              domain.CheckInMethod(req.Method),
		CheckInDate:         req.CheckInDate,
		CheckInTime:         req.CheckInTime,
		AllowManualOverride: req.AllowManualOverride,
		Actor:               &actor,
		Notes:               req.Notes,
	})
	writeCheckIn(w, result, err)
}

func (h *Handler) fingerprintCheckIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeAttendanceDevice)
	if !ok {
		return
	}

	var req FingerprintRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BiometricID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "biometric_id is required")
		return
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = claims.Subject
	}

	result, err := h.service.FingerprintCheckIn(r.Context(), domain.FingerprintCheckInRequest{
		OrganizationID: claims.OrganizationID,
		BranchID:       branchFor(claims, req.BranchID),
		BiometricID:    req.BiometricID,
		DeviceID:       deviceID,
	})
	writeCheckIn(w, result, err)
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeAttendanceWrite)
	if !ok {
		return
	}

	actor := claims.Subject
	record, err := h.service.CheckOut(r.Context(), domain.CheckOutRequest{
		OrganizationID: claims.OrganizationID,
		AttendanceID:   chi.URLParam(r, "attendanceID"),
		Actor:          &actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceView(*record))
}

func (h *Handler) updateAttendance(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeAttendanceOverride)
	if !ok {
		return
	}

	var req UpdateAttendanceRequest
	if !decode(w, r, &req) {
		return
	}

	patch := domain.AttendancePatch{
		CheckInTime:   req.CheckInTime,
		CheckOutTime:  req.CheckOutTime,
		BlockedReason: req.BlockedReason,
		Notes:         req.Notes,
	}
	if req.Status != nil {
		status := domain.Verdict(*req.Status)
		patch.Status = &status
	}

	actor := claims.Subject
	record, err := h.service.UpdateAttendance(r.Context(), domain.UpdateAttendanceRequest{
		OrganizationID:      claims.OrganizationID,
		AttendanceID:        chi.URLParam(r, "attendanceID"),
		Patch:               patch,
		AllowManualOverride: req.AllowManualOverride,
		Actor:               &actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceView(*record))
}

func (h *Handler) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeMembershipAdmin); !ok {
		return
	}
	if h.sweeps == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "expiry sweep is not configured on this instance")
		return
	}

	summary, err := h.sweeps.Trigger(r.Context())
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "sweep_running", err.Error())
		return
	}
	if err != nil {
		log.Printf("manual expiry sweep failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "expiry sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{
		Expired:  summary.Expired,
		Notified: summary.Notified,
		Failed:   summary.Failed,
		Skipped:  summary.Skipped,
	})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// branchFor pins device and branch-scoped tokens to their own branch.
func branchFor(claims *auth.Claims, requested string) string {
	if claims.BranchID != "" {
		return claims.BranchID
	}
	return requested
}

func writeCheckIn(w http.ResponseWriter, result *domain.CheckInResult, err error) {
	var dup *domain.DuplicateCheckInError
	switch {
	case errors.As(err, &dup) && result != nil:
		resp := toCheckInResponse(*result)
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		writeDomainError(w, err)
	case result.Outcome == domain.OutcomeDenied:
		writeJSON(w, http.StatusForbidden, toCheckInResponse(*result))
	default:
		writeJSON(w, http.StatusCreated, toCheckInResponse(*result))
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrDuplicateCheckIn), errors.Is(err, domain.ErrAlreadyClosed):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrOverrideRequired), errors.Is(err, domain.ErrActorRequired):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrInvalidTimestamp), errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		log.Printf("attendance request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// CheckInRequest is the payload for POST /v1/attendance/check-in.
type CheckInRequest struct {
	MemberID            string `json:"member_id"`
	BranchID            string `json:"branch_id,omitempty"`
	Method              string `json:"method,omitempty"`
	CheckInDate         string `json:"check_in_date,omitempty"`
	CheckInTime         string `json:"check_in_time,omitempty"`
	AllowManualOverride bool   `json:"allow_manual_override,omitempty"`
	Notes               string `json:"notes,omitempty"`
}

// FingerprintRequest is the payload for POST /v1/attendance/fingerprint.
type FingerprintRequest struct {
	BiometricID string `json:"biometric_id"`
	BranchID    string `json:"branch_id,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
}

// UpdateAttendanceRequest is the payload for PATCH /v1/attendance/{id}.
type UpdateAttendanceRequest struct {
	CheckInTime         *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime        *time.Time `json:"check_out_time,omitempty"`
	Status              *string    `json:"status,omitempty"`
	BlockedReason       *string    `json:"blocked_reason,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	AllowManualOverride bool       `json:"allow_manual_override"`
}

// CheckInResponse is returned for admitted, denied and duplicate attempts.
type CheckInResponse struct {
	Outcome    string          `json:"outcome"`
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Attendance AttendanceView  `json:"attendance"`
	Member     *MemberResponse `json:"member,omitempty"`
}

// AttendanceView is the JSON projection of a ledger entry.
type AttendanceView struct {
	AttendanceID  string     `json:"attendance_id"`
	MemberID      string     `json:"member_id"`
	BranchID      string     `json:"branch_id,omitempty"`
	CheckInTime   time.Time  `json:"check_in_time"`
	CheckOutTime  *time.Time `json:"check_out_time,omitempty"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CheckedInBy   *string    `json:"checked_in_by,omitempty"`
	Override      bool       `json:"override"`
	Corrected     bool       `json:"corrected"`
}

// MemberResponse is the member summary shown at the front desk.
type MemberResponse struct {
	MemberID          string     `json:"member_id"`
	Name              string     `json:"name"`
	MembershipStatus  string     `json:"membership_status"`
	PlanName          string     `json:"plan_name,omitempty"`
	PlanEndDate       *time.Time `json:"plan_end_date,omitempty"`
	SessionsRemaining *int       `json:"sessions_remaining,omitempty"`
	TotalCheckIns     int        `json:"total_check_ins"`
	CurrentStreak     int        `json:"current_streak"`
	LongestStreak     int        `json:"longest_streak"`
	LastCheckIn       *time.Time `json:"last_check_in,omitempty"`
}

// SweepResponse reports the counters of a manually triggered sweep.
type SweepResponse struct {
	Expired  int `json:"expired"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

func toCheckInResponse(result domain.CheckInResult) CheckInResponse {
	resp := CheckInResponse{
		Outcome:    string(result.Outcome),
		Status:     string(result.Verdict),
		Message:    result.Message,
		Attendance: toAttendanceView(result.Record),
	}
	if m := result.Member; m != nil {
		resp.Member = &MemberResponse{
			MemberID:          m.ID,
			Name:              m.Name,
			MembershipStatus:  string(m.MembershipStatus),
			PlanName:          m.PlanName,
			PlanEndDate:       m.PlanEndDate,
			SessionsRemaining: m.SessionsRemaining,
			TotalCheckIns:     m.AttendanceStats.TotalCheckIns,
			CurrentStreak:     m.AttendanceStats.CurrentStreak,
			LongestStreak:     m.AttendanceStats.LongestStreak,
			LastCheckIn:       m.AttendanceStats.LastCheckIn,
		}
	}
	return resp
}

func toAttendanceView(r domain.AttendanceRecord) AttendanceView {
	return AttendanceView{
		AttendanceID:  r.ID,
		MemberID:      r.MemberID,
		BranchID:      r.BranchID,
		CheckInTime:   r.CheckInTime,
		CheckOutTime:  r.CheckOutTime,
		Method:        string(r.Method),
		Status:        string(r.Status),
		BlockedReason: r.BlockedReason,
		Notes:         r.Notes,
		CheckedInBy:   r.CheckedInBy,
		Override:      r.Override,
		Corrected:     r.Corrected,
	}
}
