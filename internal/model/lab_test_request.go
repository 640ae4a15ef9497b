package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type LabRequestStatus string

const (
	StatusRequested       LabRequestStatus = "REQUESTED"
	StatusSampleCollected LabRequestStatus = "SAMPLE_COLLECTED"
	StatusInProgress      LabRequestStatus = "IN_PROGRESS"
	StatusCompleted       LabRequestStatus = "COMPLETED"
	StatusVerified        LabRequestStatus = "VERIFIED"
	StatusCancelled       LabRequestStatus = "CANCELLED"
)

var (
	// ActiveStatuses count toward a technician's workload.
	ActiveStatuses = []LabRequestStatus{StatusSampleCollected, StatusInProgress}
	// PendingStatuses are requests not yet finished.
	PendingStatuses = []LabRequestStatus{StatusRequested, StatusSampleCollected, StatusInProgress}
	// FinishedStatuses are requests with results available.
	FinishedStatuses = []LabRequestStatus{StatusCompleted, StatusVerified}
)

// labRequestTransitions lists the statuses reachable from each status.
// Movement is forward only; CANCELLED is reachable from every
// non-terminal status.
var labRequestTransitions = map[LabRequestStatus][]LabRequestStatus{
	StatusRequested:       {StatusSampleCollected, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusSampleCollected: {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress:      {StatusCompleted, StatusCancelled},
	StatusCompleted:       {StatusVerified, StatusCancelled},
	StatusVerified:        {},
	StatusCancelled:       {},
}

func (s LabRequestStatus) Valid() bool {
	_, ok := labRequestTransitions[s]
	return ok
}

func (s LabRequestStatus) Terminal() bool {
	return s == StatusVerified || s == StatusCancelled
}

func (s LabRequestStatus) In(set []LabRequestStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateTransition checks that a request may move from one status to another.
func ValidateTransition(from, to LabRequestStatus) error {
	if !to.Valid() {
		return fmt.Errorf("invalid status: %s", to)
	}
	allowed, ok := labRequestTransitions[from]
	if !ok {
		return fmt.Errorf("unknown current status: %s", from)
	}
	if to.In(allowed) {
		return nil
	}
	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityStat   Priority = "STAT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityStat:
		return true
	}
	return false
}

// SLA maps each priority to its expected turnaround.
type SLA map[Priority]time.Duration

// DefaultSLA is used when no configuration overrides it.
var DefaultSLA = SLA{
	PriorityStat:   1 * time.Hour,
	PriorityHigh:   4 * time.Hour,
	PriorityNormal: 24 * time.Hour,
	PriorityLow:    72 * time.Hour,
}

func (s SLA) For(p Priority) time.Duration {
	if d, ok := s[p]; ok && d > 0 {
		return d
	}
	return DefaultSLA[PriorityNormal]
}

type LabTestRequest struct {
	Base
	PatientID           uuid.UUID        `db:"patient_id" json:"patient_id"`
	DoctorID            uuid.UUID        `db:"doctor_id" json:"doctor_id"`
	LabTestID           uuid.UUID        `db:"lab_test_id" json:"lab_test_id"`
	LabTechnicianID     *uuid.UUID       `db:"lab_technician_id" json:"lab_technician_id,omitempty"`
	Status              LabRequestStatus `db:"status" json:"status"`
	Priority            Priority         `db:"priority" json:"priority"`
	RequestedDate       time.Time        `db:"requested_date" json:"requested_date"`
	SampleCollectedDate *time.Time       `db:"sample_collected_date" json:"sample_collected_date,omitempty"`
	StartedDate         *time.Time       `db:"started_date" json:"started_date,omitempty"`
	CompletedDate       *time.Time       `db:"completed_date" json:"completed_date,omitempty"`
	VerifiedDate        *time.Time       `db:"verified_date" json:"verified_date,omitempty"`
	Results             *string          `db:"results" json:"results,omitempty"`
	Findings            *string          `db:"findings" json:"findings,omitempty"`
	Notes               *string          `db:"notes" json:"notes,omitempty"`
	IsCritical          bool             `db:"is_critical" json:"is_critical"`
}

// UpdateStatus moves the request to status and stamps the date field that
// belongs to it. Earlier stamps are left as they are. Setting the current
// status again is a no-op.
func (r *LabTestRequest) UpdateStatus(status LabRequestStatus, now time.Time) error {
	if status == r.Status {
		return nil
	}
	if err := ValidateTransition(r.Status, status); err != nil {
		return err
	}

	r.Status = status
	stamp := now
	switch status {
	case StatusSampleCollected:
		r.SampleCollectedDate = &stamp
	case StatusInProgress:
		r.StartedDate = &stamp
	case StatusCompleted:
		r.CompletedDate = &stamp
	case StatusVerified:
		r.VerifiedDate = &stamp
	}
	return nil
}

// TurnaroundTime returns hours between request and completion, or nil
// while the request is not completed.
func (r *LabTestRequest) TurnaroundTime() *float64 {
	if r.CompletedDate == nil || r.RequestedDate.IsZero() {
		return nil
	}
	hours := r.CompletedDate.Sub(r.RequestedDate).Hours()
	return &hours
}

// IsOverdue compares the elapsed time against the priority's SLA. Finished
// requests are judged on their turnaround, cancelled ones never are.
func (r *LabTestRequest) IsOverdue(now time.Time, sla SLA) bool {
	limit := sla.For(r.Priority)
	switch {
	case r.Status == StatusCancelled:
		return false
	case r.CompletedDate != nil:
		return r.CompletedDate.Sub(r.RequestedDate) > limit
	default:
		return now.Sub(r.RequestedDate) > limit
	}
}

// LabTestRequestView is the response shape: the stored request plus derived
// fields and, when populated, the referenced catalog test and technician.
type LabTestRequestView struct {
	*LabTestRequest
	IsOverdue      bool              `json:"is_overdue"`
	TurnaroundTime *float64          `json:"turnaround_time,omitempty"`
	LabTest        *LabTestRef       `json:"lab_test,omitempty"`
	LabTechnician  *LabTechnicianRef `json:"lab_technician,omitempty"`
}

func (r *LabTestRequest) View(now time.Time, sla SLA) *LabTestRequestView {
	return &LabTestRequestView{
		LabTestRequest: r,
		IsOverdue:      r.IsOverdue(now, sla),
		TurnaroundTime: r.TurnaroundTime(),
	}
}

type CreateLabTestRequestRequest struct {
	PatientID       uuid.UUID  `json:"patient_id" binding:"required"`
	LabTestID       uuid.UUID  `json:"lab_test_id" binding:"required"`
	DoctorID        *uuid.UUID `json:"doctor_id"`
	LabTechnicianID *uuid.UUID `json:"lab_technician_id"`
	Priority        string     `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH STAT"`
	Notes           *string    `json:"notes" binding:"omitempty,max=5000"`
	AutoAssign      bool       `json:"auto_assign"`
}

// UpdateLabTestRequestRequest is a partial update. UnassignTechnician
// clears the technician and cannot be combined with LabTechnicianID.
type UpdateLabTestRequestRequest struct {
	Status             *string    `json:"status" binding:"omitempty,oneof=REQUESTED SAMPLE_COLLECTED IN_PROGRESS COMPLETED VERIFIED CANCELLED"`
	Priority           *string    `json:"priority" binding:"omitempty,oneof=LOW NORMAL HIGH STAT"`
	LabTechnicianID    *uuid.UUID `json:"lab_technician_id"`
	UnassignTechnician bool       `json:"unassign_technician"`
	Results            *string    `json:"results" binding:"omitempty,max=20000"`
	Findings           *string    `json:"findings" binding:"omitempty,max=20000"`
	Notes              *string    `json:"notes" binding:"omitempty,max=5000"`
	IsCritical         *bool      `json:"is_critical"`
}

type LabTestRequestFilters struct {
	Status          LabRequestStatus
	Priority        Priority
	PatientID       *uuid.UUID
	DoctorID        *uuid.UUID
	LabTechnicianID *uuid.UUID
	IsCritical      *bool
	Pagination
}
