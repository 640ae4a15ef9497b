package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
)

const labDashboardColumns = `
	id, lab_technician_id, total_tests_completed, tests_today, pending_tests,
	average_turnaround_time, critical_findings, last_activity, created_at, updated_at`

type labDashboardRepository struct {
	BaseRepository
}

func NewLabDashboardRepository(base BaseRepository) repository.LabDashboardRepository {
	return &labDashboardRepository{base}
}

func (r *labDashboardRepository) GetByTechnician(ctx context.Context, technicianID uuid.UUID) (*model.LabDashboard, error) {
	query := `SELECT ` + labDashboardColumns + ` FROM lab_dashboards WHERE lab_technician_id = $1`

	var d model.LabDashboard
	if err := sqlx.GetContext(ctx, r.conn(ctx), &d, query, technicianID); err != nil {
		return nil, notFound(err, "lab dashboard", "get lab dashboard")
	}
	return &d, nil
}

// Upsert stores the dashboard keyed by technician. The stored row's id and
// created_at are written back onto d.
func (r *labDashboardRepository) Upsert(ctx context.Context, d *model.LabDashboard) error {
	query := `
		INSERT INTO lab_dashboards (` + labDashboardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (lab_technician_id) DO UPDATE SET
			total_tests_completed = EXCLUDED.total_tests_completed,
			tests_today = EXCLUDED.tests_today,
			pending_tests = EXCLUDED.pending_tests,
			average_turnaround_time = EXCLUDED.average_turnaround_time,
			critical_findings = EXCLUDED.critical_findings,
			last_activity = EXCLUDED.last_activity,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	now := time.Now()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	row := r.conn(ctx).QueryRowxContext(ctx, query,
		d.ID,
		d.LabTechnicianID,
		d.TotalTestsCompleted,
		d.TestsToday,
		d.PendingTests,
		d.AverageTurnaroundTime,
		d.CriticalFindings,
		d.LastActivity,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert lab dashboard: %w", err)
	}
	return nil
}
