package labrequest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/service/event"
	"github.com/jwalitptl/lab-api/internal/service/labtest"
	"github.com/jwalitptl/lab-api/internal/service/notification"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

const (
	noTechnicianMessage   = "no lab technician is available to take the request"
	inactiveTechnician    = "lab technician is not active"
	doctorRequiredMessage = "doctor_id is required"
	unassignConflict      = "unassign_technician cannot be combined with lab_technician_id"
)

type Options struct {
	SLA model.SLA
	Now func() time.Time
}

type Service struct {
	tx          repository.Transactor
	requests    repository.LabTestRequestRepository
	technicians repository.LabTechnicianRepository
	tests       *labtest.Service
	events      *event.EventService
	notifier    notification.Service
	opts        Options
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func NewService(
	tx repository.Transactor,
	requests repository.LabTestRequestRepository,
	technicians repository.LabTechnicianRepository,
	tests *labtest.Service,
	events *event.EventService,
	notifier notification.Service,
	opts Options,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	if opts.SLA == nil {
		opts.SLA = model.DefaultSLA
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		tx:          tx,
		requests:    requests,
		technicians: technicians,
		tests:       tests,
		events:      events,
		notifier:    notifier,
		opts:        opts,
		logger:      logger,
		metrics:     metrics,
	}
}

// Create orders a test. Doctors order under their own id; admins must
// name the doctor. A technician is taken from the request or, with
// AutoAssign, the least loaded one that can accept more tests.
func (s *Service) Create(ctx context.Context, session *model.Session, req *model.CreateLabTestRequestRequest) (*model.LabTestRequestView, error) {
	doctorID, err := resolveDoctor(session, req.DoctorID)
	if err != nil {
		return nil, err
	}

	test, err := s.tests.GetActive(ctx, req.LabTestID)
	if err != nil {
		return nil, err
	}

	priority := model.Priority(req.Priority)
	if priority == "" {
		priority = model.PriorityNormal
	}

	now := s.opts.Now()
	r := &model.LabTestRequest{
		PatientID:     req.PatientID,
		DoctorID:      doctorID,
		LabTestID:     test.ID,
		Status:        model.StatusRequested,
		Priority:      priority,
		RequestedDate: now,
		Notes:         req.Notes,
	}

	var tech *model.LabTechnician
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		switch {
		case req.LabTechnicianID != nil:
			tech, err = s.lockAssignable(ctx, *req.LabTechnicianID)
		case req.AutoAssign:
			tech, err = s.technicians.FindLeastLoaded(ctx)
			if apperrors.IsNotFound(err) {
				err = apperrors.Capacity(noTechnicianMessage)
			}
		}
		if err != nil {
			return err
		}
		if tech != nil {
			r.LabTechnicianID = &tech.ID
		}

		if err := s.requests.Create(ctx, r); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventLabRequestCreated, r.ID,
			model.NewLabRequestEvent(r, "", session.UserID, now))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RequestsCreated.WithLabelValues(string(r.Priority)).Inc()
	s.logger.Info("Lab test request created",
		"request_id", r.ID.String(),
		"lab_test_id", r.LabTestID.String(),
		"priority", string(r.Priority))

	view := r.View(now, s.opts.SLA)
	view.LabTest = test.Ref()
	if tech != nil {
		view.LabTechnician = tech.Ref()
	}
	return view, nil
}

func resolveDoctor(session *model.Session, requested *uuid.UUID) (uuid.UUID, error) {
	if session.HasRole(model.RoleDoctor) {
		if requested != nil && *requested != session.UserID {
			return uuid.Nil, apperrors.Forbidden("doctors may only order tests under their own id")
		}
		return session.UserID, nil
	}
	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, apperrors.BadRequest(doctorRequiredMessage, nil)
	}
	return *requested, nil
}

// lockAssignable locks the technician row and checks it can take one
// more request, counting unfinished requests already assigned to it.
func (s *Service) lockAssignable(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	tech, err := s.technicians.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tech.IsActive {
		return nil, apperrors.BadRequest(inactiveTechnician, nil)
	}
	pending, err := s.requests.CountPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tech.CanTakeAssignment(pending) {
		return nil, apperrors.Capacity(model.MaxWorkloadMessage)
	}
	return tech, nil
}

// Get returns the request populated with its lab test and technician.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.LabTestRequestView, error) {
	r, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.populate(ctx, r), nil
}

func (s *Service) populate(ctx context.Context, r *model.LabTestRequest) *model.LabTestRequestView {
	view := r.View(s.opts.Now(), s.opts.SLA)

	if test, err := s.tests.Get(ctx, r.LabTestID); err == nil {
		view.LabTest = test.Ref()
	} else {
		s.logger.Warn("Lab test request references a missing lab test",
			"request_id", r.ID.String(), "lab_test_id", r.LabTestID.String())
	}

	if r.LabTechnicianID != nil {
		if tech, err := s.technicians.Get(ctx, *r.LabTechnicianID); err == nil {
			view.LabTechnician = tech.Ref()
		} else {
			s.logger.Warn("Lab test request references a missing lab technician",
				"request_id", r.ID.String(), "lab_technician_id", r.LabTechnicianID.String())
		}
	}
	return view
}

func (s *Service) List(ctx context.Context, filters *model.LabTestRequestFilters) ([]*model.LabTestRequestView, int, error) {
	requests, total, err := s.requests.List(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	now := s.opts.Now()
	views := make([]*model.LabTestRequestView, len(requests))
	for i, r := range requests {
		views[i] = r.View(now, s.opts.SLA)
	}
	return views, total, nil
}

// Update applies a partial update in one transaction: the request row is
// locked, a newly assigned technician must be able to accept more tests,
// and every technician touched has its workload recounted before commit.
// A request that becomes critical triggers an alert after commit.
func (s *Service) Update(ctx context.Context, session *model.Session, id uuid.UUID, req *model.UpdateLabTestRequestRequest) (*model.LabTestRequestView, error) {
	now := s.opts.Now()

	var before, r *model.LabTestRequest
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.requests.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		prev := *r
		before = &prev

		if err := s.applyTechnician(ctx, r, req); err != nil {
			return err
		}
		if req.Status != nil {
			if err := r.UpdateStatus(model.LabRequestStatus(*req.Status), now); err != nil {
				return apperrors.BadRequest(err.Error(), nil)
			}
			if err := s.checkActivation(ctx, before, r); err != nil {
				return err
			}
		}
		applyFields(r, req)

		if err := s.requests.Update(ctx, r); err != nil {
			return err
		}
		if err := s.recountTouched(ctx, before, r); err != nil {
			return err
		}
		return s.emitChanges(ctx, session, before, r, now)
	})
	if err != nil {
		return nil, err
	}

	if before.Status != r.Status {
		s.metrics.StatusTransitions.WithLabelValues(string(before.Status), string(r.Status)).Inc()
	}

	view := s.populate(ctx, r)
	if !before.IsCritical && r.IsCritical {
		s.logger.Warn("Lab test request flagged critical", "request_id", r.ID.String())
		var test *model.LabTest
		if t, err := s.tests.Get(ctx, r.LabTestID); err == nil {
			test = t
		}
		s.notifier.NotifyCritical(ctx, r, test)
	}
	return view, nil
}

func (s *Service) applyTechnician(ctx context.Context, r *model.LabTestRequest, req *model.UpdateLabTestRequestRequest) error {
	technicianID := req.LabTechnicianID
	if req.UnassignTechnician {
		if technicianID != nil {
			return apperrors.BadRequest(unassignConflict, nil)
		}
		if r.LabTechnicianID == nil {
			return nil
		}
		if r.Status.Terminal() {
			return apperrors.BadRequest("cannot unassign a "+string(r.Status)+" request", nil)
		}
		r.LabTechnicianID = nil
		return nil
	}

	if technicianID == nil {
		return nil
	}
	if r.LabTechnicianID != nil && *r.LabTechnicianID == *technicianID {
		return nil
	}
	if r.Status.Terminal() {
		return apperrors.BadRequest("cannot reassign a "+string(r.Status)+" request", nil)
	}

	if _, err := s.lockAssignable(ctx, *technicianID); err != nil {
		return err
	}
	id := *technicianID
	r.LabTechnicianID = &id
	return nil
}

// checkActivation guards the case where an already assigned request moves
// into a status that counts toward workload: the technician must still
// have a free slot.
func (s *Service) checkActivation(ctx context.Context, before, r *model.LabTestRequest) error {
	if r.LabTechnicianID == nil || before.Status.In(model.ActiveStatuses) || !r.Status.In(model.ActiveStatuses) {
		return nil
	}
	if !sameTechnician(before.LabTechnicianID, r.LabTechnicianID) {
		// checked by applyTechnician
		return nil
	}

	tech, err := s.technicians.GetForUpdate(ctx, *r.LabTechnicianID)
	if err != nil {
		return err
	}
	if tech.CurrentWorkload >= tech.MaxConcurrentTests {
		return apperrors.Capacity(model.MaxWorkloadMessage)
	}
	return nil
}

func applyFields(r *model.LabTestRequest, req *model.UpdateLabTestRequestRequest) {
	if req.Priority != nil {
		r.Priority = model.Priority(*req.Priority)
	}
	if req.Results != nil {
		r.Results = req.Results
	}
	if req.Findings != nil {
		r.Findings = req.Findings
	}
	if req.Notes != nil {
		r.Notes = req.Notes
	}
	if req.IsCritical != nil {
		r.IsCritical = *req.IsCritical
	}
}

func (s *Service) recountTouched(ctx context.Context, before, r *model.LabTestRequest) error {
	if before.Status == r.Status && sameTechnician(before.LabTechnicianID, r.LabTechnicianID) {
		return nil
	}

	touched := []*uuid.UUID{before.LabTechnicianID}
	if !sameTechnician(before.LabTechnicianID, r.LabTechnicianID) {
		touched = append(touched, r.LabTechnicianID)
	}
	for _, id := range touched {
		if id == nil {
			continue
		}
		if _, err := s.technicians.RecountWorkload(ctx, *id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) emitChanges(ctx context.Context, session *model.Session, before, r *model.LabTestRequest, now time.Time) error {
	var actor uuid.UUID
	if session != nil {
		actor = session.UserID
	}

	type change struct {
		happened  bool
		eventType string
	}
	for _, c := range []change{
		{before.Status != r.Status, model.EventLabRequestStatusChanged},
		{!sameTechnician(before.LabTechnicianID, r.LabTechnicianID), model.EventLabRequestAssigned},
		{!before.IsCritical && r.IsCritical, model.EventLabRequestCritical},
	} {
		if !c.happened {
			continue
		}
		if err := s.events.Emit(ctx, c.eventType, r.ID, model.NewLabRequestEvent(r, before.Status, actor, now)); err != nil {
			return err
		}
	}
	return nil
}

func sameTechnician(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
