package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
)

const labTechnicianColumns = `
	id, user_id, employee_id, specialization, current_workload,
	max_concurrent_tests, is_available, performance_score, is_active,
	created_at, updated_at`

type labTechnicianRepository struct {
	BaseRepository
}

func NewLabTechnicianRepository(base BaseRepository) repository.LabTechnicianRepository {
	return &labTechnicianRepository{base}
}

func statusArray(in []model.LabRequestStatus) interface{} {
	statuses := make([]string, len(in))
	for i, s := range in {
		statuses[i] = string(s)
	}
	return pq.Array(statuses)
}

func activeStatuses() interface{} {
	return statusArray(model.ActiveStatuses)
}

func (r *labTechnicianRepository) Create(ctx context.Context, tech *model.LabTechnician) error {
	query := `
		INSERT INTO lab_technicians (` + labTechnicianColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now()
	tech.ID = uuid.New()
	tech.CreatedAt = now
	tech.UpdatedAt = now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		tech.ID,
		tech.UserID,
		tech.EmployeeID,
		tech.Specialization,
		tech.CurrentWorkload,
		tech.MaxConcurrentTests,
		tech.IsAvailable,
		tech.PerformanceScore,
		tech.IsActive,
		tech.CreatedAt,
		tech.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr(err, "a lab technician with this user or employee ID already exists", "create lab technician")
	}
	return nil
}

func (r *labTechnicianRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	query := `SELECT ` + labTechnicianColumns + ` FROM lab_technicians WHERE id = $1`

	var tech model.LabTechnician
	if err := sqlx.GetContext(ctx, r.conn(ctx), &tech, query, id); err != nil {
		return nil, notFound(err, "lab technician", "get lab technician")
	}
	return &tech, nil
}

func (r *labTechnicianRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	query := `SELECT ` + labTechnicianColumns + ` FROM lab_technicians WHERE id = $1 FOR UPDATE`

	var tech model.LabTechnician
	if err := sqlx.GetContext(ctx, r.conn(ctx), &tech, query, id); err != nil {
		return nil, notFound(err, "lab technician", "lock lab technician")
	}
	return &tech, nil
}

// Update writes the registry fields. The workload counter is owned by the
// workload operations and is not touched here.
func (r *labTechnicianRepository) Update(ctx context.Context, tech *model.LabTechnician) error {
	query := `
		UPDATE lab_technicians
		SET specialization = $1, max_concurrent_tests = $2, is_available = $3,
			is_active = $4, updated_at = $5
		WHERE id = $6
	`

	tech.UpdatedAt = time.Now()
	result, err := r.conn(ctx).ExecContext(ctx, query,
		tech.Specialization,
		tech.MaxConcurrentTests,
		tech.IsAvailable,
		tech.IsActive,
		tech.UpdatedAt,
		tech.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lab technician: %w", err)
	}
	return requireRow(result, "lab technician")
}

func (r *labTechnicianRepository) List(ctx context.Context, filters *model.LabTechnicianFilters) ([]*model.LabTechnician, int, error) {
	where := ` WHERE 1=1`
	if !filters.IncludeInactive {
		where += ` AND is_active = TRUE`
	}
	order := ` ORDER BY employee_id`
	if filters.AvailableOnly {
		where += ` AND is_available = TRUE AND current_workload < max_concurrent_tests`
		order = ` ORDER BY current_workload ASC, performance_score DESC`
	}

	var total int
	if err := sqlx.GetContext(ctx, r.conn(ctx), &total, `SELECT COUNT(*) FROM lab_technicians`+where); err != nil {
		return nil, 0, fmt.Errorf("failed to count lab technicians: %w", err)
	}

	page := filters.Pagination.Normalize()
	query := `SELECT ` + labTechnicianColumns + ` FROM lab_technicians` + where + order + ` LIMIT $1 OFFSET $2`

	techs := []*model.LabTechnician{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &techs, query, page.Limit, page.Offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list lab technicians: %w", err)
	}
	return techs, total, nil
}

func (r *labTechnicianRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &ids, `SELECT id FROM lab_technicians WHERE is_active = TRUE ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list active lab technicians: %w", err)
	}
	return ids, nil
}

func (r *labTechnicianRepository) AssignTest(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	query := `
		UPDATE lab_technicians
		SET current_workload = current_workload + 1, updated_at = NOW()
		WHERE id = $1 AND current_workload < max_concurrent_tests
		RETURNING ` + labTechnicianColumns

	var tech model.LabTechnician
	err := sqlx.GetContext(ctx, r.conn(ctx), &tech, query, id)
	switch {
	case err == nil:
		return &tech, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to assign test: %w", err)
	}

	// no row updated: either missing or at capacity
	var exists bool
	if err := sqlx.GetContext(ctx, r.conn(ctx), &exists, `SELECT EXISTS (SELECT 1 FROM lab_technicians WHERE id = $1)`, id); err != nil {
		return nil, fmt.Errorf("failed to check lab technician: %w", err)
	}
	if !exists {
		return nil, apperrors.NotFound("lab technician", nil)
	}
	return nil, apperrors.Capacity(model.MaxWorkloadMessage)
}

func (r *labTechnicianRepository) CompleteTest(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	query := `
		UPDATE lab_technicians
		SET current_workload = GREATEST(current_workload - 1, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + labTechnicianColumns

	var tech model.LabTechnician
	if err := sqlx.GetContext(ctx, r.conn(ctx), &tech, query, id); err != nil {
		return nil, notFound(err, "lab technician", "complete test")
	}
	return &tech, nil
}

func (r *labTechnicianRepository) RecountWorkload(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	query := `
		UPDATE lab_technicians t
		SET current_workload = (
				SELECT COUNT(*) FROM lab_test_requests r
				WHERE r.lab_technician_id = t.id AND r.status = ANY($2)
			),
			updated_at = NOW()
		WHERE t.id = $1
		RETURNING ` + labTechnicianColumns

	var tech model.LabTechnician
	if err := sqlx.GetContext(ctx, r.conn(ctx), &tech, query, id, activeStatuses()); err != nil {
		return nil, notFound(err, "lab technician", "recount workload")
	}
	return &tech, nil
}

func (r *labTechnicianRepository) ReconcileWorkloads(ctx context.Context) ([]*model.WorkloadCorrection, error) {
	query := `
		WITH counts AS (
			SELECT t.id, t.current_workload AS previous,
				(SELECT COUNT(*) FROM lab_test_requests r
				 WHERE r.lab_technician_id = t.id AND r.status = ANY($1)) AS actual
			FROM lab_technicians t
			WHERE t.is_active = TRUE
		)
		UPDATE lab_technicians t
		SET current_workload = c.actual, updated_at = NOW()
		FROM counts c
		WHERE t.id = c.id AND t.current_workload <> c.actual
		RETURNING t.id, c.previous, c.actual
	`

	corrections := []*model.WorkloadCorrection{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &corrections, query, activeStatuses()); err != nil {
		return nil, fmt.Errorf("failed to reconcile workloads: %w", err)
	}
	return corrections, nil
}

func (r *labTechnicianRepository) FindLeastLoaded(ctx context.Context) (*model.LabTechnician, error) {
	query := `
		SELECT ` + labTechnicianColumns + `
		FROM lab_technicians t
		CROSS JOIN LATERAL (
			SELECT COUNT(*) AS pending
			FROM lab_test_requests r
			WHERE r.lab_technician_id = t.id AND r.status = ANY($1)
		) p
		WHERE t.is_active = TRUE AND t.is_available = TRUE
			AND t.current_workload < t.max_concurrent_tests
			AND p.pending < t.max_concurrent_tests
		ORDER BY p.pending ASC, t.current_workload ASC, t.performance_score DESC
		LIMIT 1
		FOR UPDATE OF t SKIP LOCKED
	`

	var tech model.LabTechnician
	if err := sqlx.GetContext(ctx, r.conn(ctx), &tech, query, statusArray(model.PendingStatuses)); err != nil {
		return nil, notFound(err, "available lab technician", "find available lab technician")
	}
	return &tech, nil
}

func (r *labTechnicianRepository) UpdatePerformanceScore(ctx context.Context, id uuid.UUID, score float64) error {
	query := `UPDATE lab_technicians SET performance_score = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.conn(ctx).ExecContext(ctx, query, score, id)
	if err != nil {
		return fmt.Errorf("failed to update performance score: %w", err)
	}
	return requireRow(result, "lab technician")
}
