package labtechnician

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

type Service struct {
	repo       repository.LabTechnicianRepository
	defaultMax int
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewService builds the technician service. defaultMax is used for
// technicians registered without an explicit capacity.
func NewService(repo repository.LabTechnicianRepository, defaultMax int, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		repo:       repo,
		defaultMax: defaultMax,
		logger:     logger,
		metrics:    metrics,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateLabTechnicianRequest) (*model.LabTechnician, error) {
	tech := &model.LabTechnician{
		UserID:             req.UserID,
		EmployeeID:         req.EmployeeID,
		Specialization:     req.Specialization,
		MaxConcurrentTests: req.MaxConcurrentTests,
		IsAvailable:        true,
		IsActive:           true,
	}
	if tech.MaxConcurrentTests <= 0 {
		tech.MaxConcurrentTests = s.defaultMax
	}
	if req.IsAvailable != nil {
		tech.IsAvailable = *req.IsAvailable
	}

	if err := s.repo.Create(ctx, tech); err != nil {
		return nil, err
	}

	s.logger.Info("Lab technician registered",
		"lab_technician_id", tech.ID.String(),
		"employee_id", tech.EmployeeID)
	return tech, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateLabTechnicianRequest) (*model.LabTechnician, error) {
	tech, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(tech)
	if err := s.repo.Update(ctx, tech); err != nil {
		return nil, err
	}
	return tech, nil
}

func (s *Service) List(ctx context.Context, filters *model.LabTechnicianFilters) ([]*model.LabTechnician, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) GetWorkload(ctx context.Context, id uuid.UUID) (*model.WorkloadSnapshot, error) {
	tech, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tech.Snapshot(), nil
}

// ApplyWorkloadAction runs one of the workload operations: assign takes a
// slot if one is free, complete releases one, update recounts from the
// requests currently in progress.
func (s *Service) ApplyWorkloadAction(ctx context.Context, id uuid.UUID, action model.WorkloadAction) (*model.WorkloadSnapshot, error) {
	var (
		tech *model.LabTechnician
		err  error
	)

	switch action {
	case model.WorkloadAssign:
		tech, err = s.repo.AssignTest(ctx, id)
	case model.WorkloadComplete:
		tech, err = s.repo.CompleteTest(ctx, id)
	case model.WorkloadUpdate:
		tech, err = s.repo.RecountWorkload(ctx, id)
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid workload action: %s", action), nil)
	}

	if err != nil {
		s.metrics.WorkloadActions.WithLabelValues(string(action), resultLabel(err)).Inc()
		if apperrors.Code(err) == apperrors.ErrCapacity {
			s.logger.Warn("Lab technician at capacity", "lab_technician_id", id.String())
		}
		return nil, err
	}

	s.metrics.WorkloadActions.WithLabelValues(string(action), "success").Inc()
	s.logger.Debug("Workload updated",
		"lab_technician_id", id.String(),
		"action", string(action),
		"current_workload", tech.CurrentWorkload)
	return tech.Snapshot(), nil
}

// Reconcile recounts every active technician and reports the drifted ones.
func (s *Service) Reconcile(ctx context.Context) ([]*model.WorkloadCorrection, error) {
	corrections, err := s.repo.ReconcileWorkloads(ctx)
	if err != nil {
		return nil, err
	}

	for _, c := range corrections {
		s.metrics.WorkloadDrift.Inc()
		s.logger.Warn("Corrected lab technician workload drift",
			"lab_technician_id", c.TechnicianID.String(),
			"previous", c.Previous,
			"current", c.Current)
	}
	return corrections, nil
}

func resultLabel(err error) string {
	switch apperrors.Code(err) {
	case apperrors.ErrCapacity:
		return "capacity"
	case apperrors.ErrNotFound:
		return "not_found"
	default:
		return "error"
	}
}
