package model

import (
	"time"

	"github.com/google/uuid"
)

// LabDashboard is a per-technician summary rebuilt from the request table.
type LabDashboard struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	LabTechnicianID       uuid.UUID  `db:"lab_technician_id" json:"lab_technician_id"`
	TotalTestsCompleted   int        `db:"total_tests_completed" json:"total_tests_completed"`
	TestsToday            int        `db:"tests_today" json:"tests_today"`
	PendingTests          int        `db:"pending_tests" json:"pending_tests"`
	AverageTurnaroundTime float64    `db:"average_turnaround_time" json:"average_turnaround_time"`
	CriticalFindings      int        `db:"critical_findings" json:"critical_findings"`
	LastActivity          *time.Time `db:"last_activity" json:"last_activity,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// DashboardStats is the result of folding a technician's requests.
type DashboardStats struct {
	TotalTestsCompleted   int
	TestsToday            int
	PendingTests          int
	CriticalFindings      int
	AverageTurnaroundTime float64
	// OnTimeRate is the percentage of finished requests completed within SLA.
	OnTimeRate float64
}

// ComputeDashboardStats folds requests into dashboard counters in a single
// pass. "Today" is the calendar day of now in now's location.
func ComputeDashboardStats(requests []*LabTestRequest, now time.Time, sla SLA) DashboardStats {
	var stats DashboardStats

	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var turnaroundSum float64
	var turnaroundCount, onTime int

	for _, r := range requests {
		finished := r.Status.In(FinishedStatuses)
		if finished {
			stats.TotalTestsCompleted++
			if r.CompletedDate != nil && !r.CompletedDate.Before(dayStart) && r.CompletedDate.Before(dayEnd) {
				stats.TestsToday++
			}
			if !r.IsOverdue(now, sla) {
				onTime++
			}
		}
		if r.Status.In(PendingStatuses) {
			stats.PendingTests++
		}
		if r.IsCritical {
			stats.CriticalFindings++
		}
		if tat := r.TurnaroundTime(); tat != nil {
			turnaroundSum += *tat
			turnaroundCount++
		}
	}

	if turnaroundCount > 0 {
		stats.AverageTurnaroundTime = turnaroundSum / float64(turnaroundCount)
	}
	if stats.TotalTestsCompleted > 0 {
		stats.OnTimeRate = float64(onTime) * 100 / float64(stats.TotalTestsCompleted)
	}
	return stats
}

// Apply writes stats onto the dashboard and marks the activity time.
func (d *LabDashboard) Apply(stats DashboardStats, now time.Time) {
	d.TotalTestsCompleted = stats.TotalTestsCompleted
	d.TestsToday = stats.TestsToday
	d.PendingTests = stats.PendingTests
	d.CriticalFindings = stats.CriticalFindings
	d.AverageTurnaroundTime = stats.AverageTurnaroundTime
	d.LastActivity = &now
}
