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

const labTestColumns = `
	id, name, category, price, duration_minutes, sample_type,
	preparation_instructions, normal_range, units, is_active,
	created_at, updated_at`

type labTestRepository struct {
	BaseRepository
}

func NewLabTestRepository(base BaseRepository) repository.LabTestRepository {
	return &labTestRepository{base}
}

func (r *labTestRepository) Create(ctx context.Context, test *model.LabTest) error {
	query := `
		INSERT INTO lab_tests (` + labTestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now()
	test.ID = uuid.New()
	test.CreatedAt = now
	test.UpdatedAt = now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		test.ID,
		test.Name,
		test.Category,
		test.Price,
		test.DurationMinutes,
		test.SampleType,
		test.PreparationInstructions,
		test.NormalRange,
		test.Units,
		test.IsActive,
		test.CreatedAt,
		test.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr(err, "a lab test with this name already exists in the category", "create lab test")
	}
	return nil
}

func (r *labTestRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabTest, error) {
	query := `SELECT ` + labTestColumns + ` FROM lab_tests WHERE id = $1`

	var test model.LabTest
	if err := sqlx.GetContext(ctx, r.conn(ctx), &test, query, id); err != nil {
		return nil, notFound(err, "lab test", "get lab test")
	}
	return &test, nil
}

func (r *labTestRepository) Update(ctx context.Context, test *model.LabTest) error {
	query := `
		UPDATE lab_tests
		SET name = $1, category = $2, price = $3, duration_minutes = $4,
			sample_type = $5, preparation_instructions = $6, normal_range = $7,
			units = $8, is_active = $9, updated_at = $10
		WHERE id = $11
	`

	test.UpdatedAt = time.Now()
	result, err := r.conn(ctx).ExecContext(ctx, query,
		test.Name,
		test.Category,
		test.Price,
		test.DurationMinutes,
		test.SampleType,
		test.PreparationInstructions,
		test.NormalRange,
		test.Units,
		test.IsActive,
		test.UpdatedAt,
		test.ID,
	)
	if err != nil {
		return translateWriteErr(err, "a lab test with this name already exists in the category", "update lab test")
	}
	return requireRow(result, "lab test")
}

func (r *labTestRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE lab_tests SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.conn(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate lab test: %w", err)
	}
	return requireRow(result, "lab test")
}

func (r *labTestRepository) List(ctx context.Context, filters *model.LabTestFilters) ([]*model.LabTest, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if !filters.IncludeInactive {
		where += ` AND is_active = TRUE`
	}
	if filters.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, filters.Category)
		argCount++
	}
	if filters.SampleType != "" {
		where += fmt.Sprintf(" AND sample_type = $%d", argCount)
		args = append(args, filters.SampleType)
		argCount++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", argCount)
		args = append(args, "%"+filters.Search+"%")
		argCount++
	}

	var total int
	if err := sqlx.GetContext(ctx, r.conn(ctx), &total, `SELECT COUNT(*) FROM lab_tests`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count lab tests: %w", err)
	}

	page := filters.Pagination.Normalize()
	query := `SELECT ` + labTestColumns + ` FROM lab_tests` + where +
		fmt.Sprintf(" ORDER BY category, name LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, page.Limit, page.Offset)

	tests := []*model.LabTest{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &tests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list lab tests: %w", err)
	}
	return tests, total, nil
}
