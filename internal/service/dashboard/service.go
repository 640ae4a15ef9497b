package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

type Options struct {
	SLA      model.SLA
	Location *time.Location
	Now      func() time.Time
}

// Service rebuilds per-technician dashboards from the request table.
type Service struct {
	tx          repository.Transactor
	technicians repository.LabTechnicianRepository
	requests    repository.LabTestRequestRepository
	dashboards  repository.LabDashboardRepository
	opts        Options
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func NewService(
	tx repository.Transactor,
	technicians repository.LabTechnicianRepository,
	requests repository.LabTestRequestRepository,
	dashboards repository.LabDashboardRepository,
	opts Options,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	if opts.SLA == nil {
		opts.SLA = model.DefaultSLA
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		tx:          tx,
		technicians: technicians,
		requests:    requests,
		dashboards:  dashboards,
		opts:        opts,
		logger:      logger,
		metrics:     metrics,
	}
}

// Get returns the stored dashboard. A technician without one, or a call
// with refresh set, gets it recomputed first.
func (s *Service) Get(ctx context.Context, technicianID uuid.UUID, refresh bool) (*model.LabDashboard, error) {
	if _, err := s.technicians.Get(ctx, technicianID); err != nil {
		return nil, err
	}
	if refresh {
		return s.Refresh(ctx, technicianID)
	}

	d, err := s.dashboards.GetByTechnician(ctx, technicianID)
	if apperrors.IsNotFound(err) {
		return s.Refresh(ctx, technicianID)
	}
	return d, err
}

// Refresh recomputes the technician's dashboard and performance score from
// every request assigned to them.
func (s *Service) Refresh(ctx context.Context, technicianID uuid.UUID) (*model.LabDashboard, error) {
	var d *model.LabDashboard
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.technicians.Get(ctx, technicianID); err != nil {
			return err
		}

		requests, err := s.requests.ListByTechnician(ctx, technicianID)
		if err != nil {
			return err
		}

		now := s.opts.Now().In(s.opts.Location)
		stats := model.ComputeDashboardStats(requests, now, s.opts.SLA)

		d, err = s.dashboards.GetByTechnician(ctx, technicianID)
		if apperrors.IsNotFound(err) {
			d, err = &model.LabDashboard{LabTechnicianID: technicianID}, nil
		}
		if err != nil {
			return err
		}

		d.Apply(stats, now)
		if err := s.dashboards.Upsert(ctx, d); err != nil {
			return err
		}
		return s.technicians.UpdatePerformanceScore(ctx, technicianID, stats.OnTimeRate)
	})
	if err != nil {
		s.metrics.DashboardRefresh.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.DashboardRefresh.WithLabelValues("success").Inc()
	return d, nil
}

// RefreshAll refreshes every active technician. Individual failures are
// logged and skipped; the number refreshed is returned.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	ids, err := s.technicians.ListActiveIDs(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := s.Refresh(ctx, id); err != nil {
			s.logger.Error(err, "Failed to refresh lab dashboard", "lab_technician_id", id.String())
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
