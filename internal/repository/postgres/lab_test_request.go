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

const labTestRequestColumns = `
	id, patient_id, doctor_id, lab_test_id, lab_technician_id, status, priority,
	requested_date, sample_collected_date, started_date, completed_date, verified_date,
	results, findings, notes, is_critical, created_at, updated_at`

type labTestRequestRepository struct {
	BaseRepository
}

func NewLabTestRequestRepository(base BaseRepository) repository.LabTestRequestRepository {
	return &labTestRequestRepository{base}
}

func (r *labTestRequestRepository) Create(ctx context.Context, req *model.LabTestRequest) error {
	query := `
		INSERT INTO lab_test_requests (` + labTestRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	now := time.Now()
	req.ID = uuid.New()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.RequestedDate.IsZero() {
		req.RequestedDate = now
	}

	_, err := r.conn(ctx).ExecContext(ctx, query,
		req.ID,
		req.PatientID,
		req.DoctorID,
		req.LabTestID,
		req.LabTechnicianID,
		req.Status,
		req.Priority,
		req.RequestedDate,
		req.SampleCollectedDate,
		req.StartedDate,
		req.CompletedDate,
		req.VerifiedDate,
		req.Results,
		req.Findings,
		req.Notes,
		req.IsCritical,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lab test request: %w", err)
	}
	return nil
}

func (r *labTestRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabTestRequest, error) {
	return r.get(ctx, `SELECT `+labTestRequestColumns+` FROM lab_test_requests WHERE id = $1`, id)
}

func (r *labTestRequestRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LabTestRequest, error) {
	return r.get(ctx, `SELECT `+labTestRequestColumns+` FROM lab_test_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *labTestRequestRepository) get(ctx context.Context, query string, id uuid.UUID) (*model.LabTestRequest, error) {
	var req model.LabTestRequest
	if err := sqlx.GetContext(ctx, r.conn(ctx), &req, query, id); err != nil {
		return nil, notFound(err, "lab test request", "get lab test request")
	}
	return &req, nil
}

func (r *labTestRequestRepository) Update(ctx context.Context, req *model.LabTestRequest) error {
	query := `
		UPDATE lab_test_requests
		SET lab_technician_id = $1, status = $2, priority = $3,
			sample_collected_date = $4, started_date = $5, completed_date = $6,
			verified_date = $7, results = $8, findings = $9, notes = $10,
			is_critical = $11, updated_at = $12
		WHERE id = $13
	`

	req.UpdatedAt = time.Now()
	result, err := r.conn(ctx).ExecContext(ctx, query,
		req.LabTechnicianID,
		req.Status,
		req.Priority,
		req.SampleCollectedDate,
		req.StartedDate,
		req.CompletedDate,
		req.VerifiedDate,
		req.Results,
		req.Findings,
		req.Notes,
		req.IsCritical,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lab test request: %w", err)
	}
	return requireRow(result, "lab test request")
}

func (r *labTestRequestRepository) List(ctx context.Context, filters *model.LabTestRequestFilters) ([]*model.LabTestRequest, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	add := func(column string, value interface{}) {
		where += fmt.Sprintf(" AND %s = $%d", column, argCount)
		args = append(args, value)
		argCount++
	}

	if filters.Status != "" {
		add("status", filters.Status)
	}
	if filters.Priority != "" {
		add("priority", filters.Priority)
	}
	if filters.PatientID != nil {
		add("patient_id", *filters.PatientID)
	}
	if filters.DoctorID != nil {
		add("doctor_id", *filters.DoctorID)
	}
	if filters.LabTechnicianID != nil {
		add("lab_technician_id", *filters.LabTechnicianID)
	}
	if filters.IsCritical != nil {
		add("is_critical", *filters.IsCritical)
	}

	var total int
	if err := sqlx.GetContext(ctx, r.conn(ctx), &total, `SELECT COUNT(*) FROM lab_test_requests`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count lab test requests: %w", err)
	}

	page := filters.Pagination.Normalize()
	query := `SELECT ` + labTestRequestColumns + ` FROM lab_test_requests` + where +
		fmt.Sprintf(" ORDER BY requested_date DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, page.Limit, page.Offset)

	requests := []*model.LabTestRequest{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list lab test requests: %w", err)
	}
	return requests, total, nil
}

func (r *labTestRequestRepository) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*model.LabTestRequest, error) {
	query := `
		SELECT ` + labTestRequestColumns + `
		FROM lab_test_requests
		WHERE lab_technician_id = $1
		ORDER BY requested_date
	`

	requests := []*model.LabTestRequest{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &requests, query, technicianID); err != nil {
		return nil, fmt.Errorf("failed to list requests for lab technician: %w", err)
	}
	return requests, nil
}

func (r *labTestRequestRepository) CountPending(ctx context.Context, technicianID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM lab_test_requests
		WHERE lab_technician_id = $1 AND status = ANY($2)
	`

	var count int
	if err := sqlx.GetContext(ctx, r.conn(ctx), &count, query, technicianID, statusArray(model.PendingStatuses)); err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return count, nil
}
