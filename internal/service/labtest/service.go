package labtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
)

// Service manages the lab test catalog. Single-entry lookups are cached
// for ttl; every write through the service evicts the entry.
type Service struct {
	repo   repository.LabTestRepository
	cache  *cache.Cache
	logger *logger.Logger
}

func NewService(repo repository.LabTestRepository, ttl time.Duration, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateLabTestRequest) (*model.LabTest, error) {
	test := &model.LabTest{
		Name:                    req.Name,
		Category:                model.LabTestCategory(req.Category),
		Price:                   req.Price,
		DurationMinutes:         req.Duration,
		SampleType:              model.SampleType(req.SampleType),
		PreparationInstructions: req.PreparationInstructions,
		NormalRange:             req.NormalRange,
		Units:                   req.Units,
		IsActive:                true,
	}
	if err := s.repo.Create(ctx, test); err != nil {
		return nil, err
	}

	s.logger.Info("Lab test created", "lab_test_id", test.ID.String(), "name", test.Name)
	return test, nil
}

// Get returns the test whether or not it is active.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.LabTest, error) {
	if cached, ok := s.cache.Get(id.String()); ok {
		test := *cached.(*model.LabTest)
		return &test, nil
	}

	test, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stored := *test
	s.cache.SetDefault(id.String(), &stored)
	return test, nil
}

// GetActive is Get for callers that order tests; inactive tests are
// rejected with a validation error.
func (s *Service) GetActive(ctx context.Context, id uuid.UUID) (*model.LabTest, error) {
	test, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !test.IsActive {
		return nil, apperrors.BadRequest("lab test is not active", nil)
	}
	return test, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateLabTestRequest) (*model.LabTest, error) {
	test, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(test)
	if err := s.repo.Update(ctx, test); err != nil {
		return nil, err
	}
	s.cache.Delete(id.String())
	return test, nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(id.String())

	s.logger.Info("Lab test deactivated", "lab_test_id", id.String())
	return nil
}

func (s *Service) List(ctx context.Context, filters *model.LabTestFilters) ([]*model.LabTest, int, error) {
	return s.repo.List(ctx, filters)
}
