package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
)

// All repository interfaces in one file
type (
	// Transactor runs fn in a single database transaction. Repositories
	// called with the ctx handed to fn take part in that transaction.
	Transactor interface {
		WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	LabTestRepository interface {
		Create(ctx context.Context, test *model.LabTest) error
		Get(ctx context.Context, id uuid.UUID) (*model.LabTest, error)
		Update(ctx context.Context, test *model.LabTest) error
		Deactivate(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.LabTestFilters) ([]*model.LabTest, int, error)
	}

	LabTechnicianRepository interface {
		Create(ctx context.Context, tech *model.LabTechnician) error
		Get(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error)
		// GetForUpdate reads and row-locks the technician; only meaningful
		// inside a transaction.
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error)
		Update(ctx context.Context, tech *model.LabTechnician) error
		List(ctx context.Context, filters *model.LabTechnicianFilters) ([]*model.LabTechnician, int, error)
		ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)

		// AssignTest increments the workload only while it is below capacity.
		// At capacity it returns an errors.ErrCapacity AppError.
		AssignTest(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error)
		// CompleteTest decrements the workload, never below zero.
		CompleteTest(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error)
		// RecountWorkload replaces the workload with the number of active
		// requests assigned to the technician.
		RecountWorkload(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error)
		// ReconcileWorkloads recounts every active technician and returns
		// the ones whose stored workload was wrong.
		ReconcileWorkloads(ctx context.Context) ([]*model.WorkloadCorrection, error)
		// FindLeastLoaded locks and returns the available technician with
		// the fewest unfinished requests that still has capacity.
		FindLeastLoaded(ctx context.Context) (*model.LabTechnician, error)
		UpdatePerformanceScore(ctx context.Context, id uuid.UUID, score float64) error
	}

	LabTestRequestRepository interface {
		Create(ctx context.Context, req *model.LabTestRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.LabTestRequest, error)
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LabTestRequest, error)
		Update(ctx context.Context, req *model.LabTestRequest) error
		List(ctx context.Context, filters *model.LabTestRequestFilters) ([]*model.LabTestRequest, int, error)
		ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*model.LabTestRequest, error)
		// CountPending counts the unfinished requests assigned to a technician.
		CountPending(ctx context.Context, technicianID uuid.UUID) (int, error)
	}

	LabDashboardRepository interface {
		GetByTechnician(ctx context.Context, technicianID uuid.UUID) (*model.LabDashboard, error)
		Upsert(ctx context.Context, dashboard *model.LabDashboard) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEventsWithLock must run inside a transaction; rows held
		// by another worker are skipped.
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		// MarkFailed records the error and bumps the retry count. Once the
		// count reaches maxFailures the event is parked as FAILED.
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string, maxFailures int) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
