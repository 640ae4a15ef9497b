package model

import (
	"github.com/google/uuid"
)

// LabTechnician tracks a technician's capacity. CurrentWorkload is a
// denormalized counter over active requests; see WorkloadAction "update"
// for the recount that restores it from the request table.
type LabTechnician struct {
	Base
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	EmployeeID         string    `db:"employee_id" json:"employee_id"`
	Specialization     string    `db:"specialization" json:"specialization"`
	CurrentWorkload    int       `db:"current_workload" json:"current_workload"`
	MaxConcurrentTests int       `db:"max_concurrent_tests" json:"max_concurrent_tests"`
	IsAvailable        bool      `db:"is_available" json:"is_available"`
	PerformanceScore   float64   `db:"performance_score" json:"performance_score"`
	IsActive           bool      `db:"is_active" json:"is_active"`
}

// MaxWorkloadMessage is the capacity error returned for a full technician.
const MaxWorkloadMessage = "lab technician has reached maximum workload"

// CanAcceptMoreTests reports whether another test may be assigned.
func (t *LabTechnician) CanAcceptMoreTests() bool {
	return t.IsAvailable && t.CurrentWorkload < t.MaxConcurrentTests
}

// CanTakeAssignment is CanAcceptMoreTests plus a bound on the unfinished
// requests already assigned. A REQUESTED request does not count toward
// CurrentWorkload yet, so pending is what spreads new work.
func (t *LabTechnician) CanTakeAssignment(pending int) bool {
	return t.IsActive && t.CanAcceptMoreTests() && pending < t.MaxConcurrentTests
}

type WorkloadAction string

const (
	WorkloadAssign   WorkloadAction = "assign"
	WorkloadComplete WorkloadAction = "complete"
	WorkloadUpdate   WorkloadAction = "update"
)

type WorkloadActionRequest struct {
	Action WorkloadAction `json:"action" binding:"required,oneof=assign complete update"`
}

// WorkloadSnapshot is the workload view returned by the workload endpoints.
type WorkloadSnapshot struct {
	TechnicianID       uuid.UUID `json:"technician_id"`
	CurrentWorkload    int       `json:"current_workload"`
	MaxConcurrentTests int       `json:"max_concurrent_tests"`
	IsAvailable        bool      `json:"is_available"`
	CanAcceptMoreTests bool      `json:"can_accept_more_tests"`
}

func (t *LabTechnician) Snapshot() *WorkloadSnapshot {
	return &WorkloadSnapshot{
		TechnicianID:       t.ID,
		CurrentWorkload:    t.CurrentWorkload,
		MaxConcurrentTests: t.MaxConcurrentTests,
		IsAvailable:        t.IsAvailable,
		CanAcceptMoreTests: t.CanAcceptMoreTests(),
	}
}

// WorkloadCorrection records a technician whose stored workload drifted
// from the recount.
type WorkloadCorrection struct {
	TechnicianID uuid.UUID `db:"id" json:"technician_id"`
	Previous     int       `db:"previous" json:"previous"`
	Current      int       `db:"actual" json:"current"`
}

type CreateLabTechnicianRequest struct {
	UserID             uuid.UUID `json:"user_id" binding:"required"`
	EmployeeID         string    `json:"employee_id" binding:"required,max=50"`
	Specialization     string    `json:"specialization" binding:"max=200"`
	MaxConcurrentTests int       `json:"max_concurrent_tests" binding:"omitempty,gt=0"`
	IsAvailable        *bool     `json:"is_available"`
}

type UpdateLabTechnicianRequest struct {
	Specialization     *string `json:"specialization" binding:"omitempty,max=200"`
	MaxConcurrentTests *int    `json:"max_concurrent_tests" binding:"omitempty,gt=0"`
	IsAvailable        *bool   `json:"is_available"`
	IsActive           *bool   `json:"is_active"`
}

func (req *UpdateLabTechnicianRequest) Apply(t *LabTechnician) {
	if req.Specialization != nil {
		t.Specialization = *req.Specialization
	}
	if req.MaxConcurrentTests != nil {
		t.MaxConcurrentTests = *req.MaxConcurrentTests
	}
	if req.IsAvailable != nil {
		t.IsAvailable = *req.IsAvailable
	}
	if req.IsActive != nil {
		t.IsActive = *req.IsActive
	}
}

type LabTechnicianFilters struct {
	// AvailableOnly restricts to technicians that can accept more tests,
	// ordered by ascending workload.
	AvailableOnly   bool
	IncludeInactive bool
	Pagination
}

// LabTechnicianRef is the technician summary embedded in populated requests.
type LabTechnicianRef struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	EmployeeID     string    `json:"employee_id"`
	Specialization string    `json:"specialization"`
}

func (t *LabTechnician) Ref() *LabTechnicianRef {
	return &LabTechnicianRef{
		ID:             t.ID,
		UserID:         t.UserID,
		EmployeeID:     t.EmployeeID,
		Specialization: t.Specialization,
	}
}
