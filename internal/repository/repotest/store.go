// Package repotest provides in-memory implementations of the repository
// interfaces for service and handler tests.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
)

// Store holds every table in memory. WithTx snapshots the store and
// restores it when fn fails.
type Store struct {
	mu sync.Mutex

	tests       map[uuid.UUID]*model.LabTest
	technicians map[uuid.UUID]*model.LabTechnician
	requests    map[uuid.UUID]*model.LabTestRequest
	dashboards  map[uuid.UUID]*model.LabDashboard
	outbox      []*model.OutboxEvent

	// Fail, when set, is returned by the next repository call and cleared.
	Fail error
}

func NewStore() *Store {
	return &Store{
		tests:       map[uuid.UUID]*model.LabTest{},
		technicians: map[uuid.UUID]*model.LabTechnician{},
		requests:    map[uuid.UUID]*model.LabTestRequest{},
		dashboards:  map[uuid.UUID]*model.LabDashboard{},
	}
}

func (s *Store) LabTests() repository.LabTestRepository             { return (*labTests)(s) }
func (s *Store) LabTechnicians() repository.LabTechnicianRepository { return (*labTechnicians)(s) }
func (s *Store) LabTestRequests() repository.LabTestRequestRepository {
	return (*labTestRequests)(s)
}
func (s *Store) LabDashboards() repository.LabDashboardRepository { return (*labDashboards)(s) }
func (s *Store) Outbox() repository.OutboxRepository               { return (*outbox)(s) }

// Events returns a copy of every outbox event written so far.
func (s *Store) Events() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, len(s.outbox))
	for i, e := range s.outbox {
		c := *e
		out[i] = &c
	}
	return out
}

func (s *Store) takeFail() error {
	err := s.Fail
	s.Fail = nil
	return err
}

type snapshot struct {
	tests       map[uuid.UUID]*model.LabTest
	technicians map[uuid.UUID]*model.LabTechnician
	requests    map[uuid.UUID]*model.LabTestRequest
	dashboards  map[uuid.UUID]*model.LabDashboard
	outbox      []*model.OutboxEvent
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		tests:       cloneMap(s.tests),
		technicians: cloneMap(s.technicians),
		requests:    cloneMap(s.requests),
		dashboards:  cloneMap(s.dashboards),
		outbox:      append([]*model.OutboxEvent(nil), s.outbox...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests = snap.tests
	s.technicians = snap.technicians
	s.requests = snap.requests
	s.dashboards = snap.dashboards
	s.outbox = snap.outbox
}

func cloneMap[T any](m map[uuid.UUID]*T) map[uuid.UUID]*T {
	out := make(map[uuid.UUID]*T, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

type txKey struct{}

// WithTx implements repository.Transactor.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func page[T any](items []T, p model.Pagination) []T {
	p = p.Normalize()
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

type labTests Store

func (r *labTests) Create(ctx context.Context, t *model.LabTest) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFail(); err != nil {
		return err
	}
	for _, existing := range s.tests {
		if existing.Name == t.Name && existing.Category == t.Category {
			return apperrors.BadRequest("a lab test with this name already exists in the category", nil)
		}
	}
	now := time.Now()
	t.ID, t.CreatedAt, t.UpdatedAt = uuid.New(), now, now
	c := *t
	s.tests[t.ID] = &c
	return nil
}

func (r *labTests) Get(ctx context.Context, id uuid.UUID) (*model.LabTest, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFail(); err != nil {
		return nil, err
	}
	t, ok := s.tests[id]
	if !ok {
		return nil, apperrors.NotFound("lab test", nil)
	}
	c := *t
	return &c, nil
}

func (r *labTests) Update(ctx context.Context, t *model.LabTest) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFail(); err != nil {
		return err
	}
	if _, ok := s.tests[t.ID]; !ok {
		return apperrors.NotFound("lab test", nil)
	}
	t.UpdatedAt = time.Now()
	c := *t
	s.tests[t.ID] = &c
	return nil
}

func (r *labTests) Deactivate(ctx context.Context, id uuid.UUID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tests[id]
	if !ok {
		return apperrors.NotFound("lab test", nil)
	}
	t.IsActive = false
	return nil
}

func (r *labTests) List(ctx context.Context, f *model.LabTestFilters) ([]*model.LabTest, int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LabTest
	for _, t := range s.tests {
		if !f.IncludeInactive && !t.IsActive {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.SampleType != "" && t.SampleType != f.SampleType {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(f.Search)) {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return page(out, f.Pagination), len(out), nil
}

type labTechnicians Store

func (r *labTechnicians) Create(ctx context.Context, t *model.LabTechnician) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFail(); err != nil {
		return err
	}
	for _, existing := range s.technicians {
		if existing.UserID == t.UserID || existing.EmployeeID == t.EmployeeID {
			return apperrors.BadRequest("a lab technician with this user or employee ID already exists", nil)
		}
	}
	now := time.Now()
	t.ID, t.CreatedAt, t.UpdatedAt = uuid.New(), now, now
	c := *t
	s.technicians[t.ID] = &c
	return nil
}

func (r *labTechnicians) get(id uuid.UUID) (*model.LabTechnician, error) {
	s := (*Store)(r)
	if err := s.takeFail(); err != nil {
		return nil, err
	}
	t, ok := s.technicians[id]
	if !ok {
		return nil, apperrors.NotFound("lab technician", nil)
	}
	return t, nil
}

func (r *labTechnicians) Get(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return nil, err
	}
	c := *t
	return &c, nil
}

func (r *labTechnicians) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	return r.Get(ctx, id)
}

func (r *labTechnicians) Update(ctx context.Context, t *model.LabTechnician) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, err := r.get(t.ID)
	if err != nil {
		return err
	}
	stored.Specialization = t.Specialization
	stored.MaxConcurrentTests = t.MaxConcurrentTests
	stored.IsAvailable = t.IsAvailable
	stored.IsActive = t.IsActive
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *labTechnicians) List(ctx context.Context, f *model.LabTechnicianFilters) ([]*model.LabTechnician, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LabTechnician
	for _, t := range r.technicians {
		if !f.IncludeInactive && !t.IsActive {
			continue
		}
		if f.AvailableOnly && !t.CanAcceptMoreTests() {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.AvailableOnly && out[i].CurrentWorkload != out[j].CurrentWorkload {
			return out[i].CurrentWorkload < out[j].CurrentWorkload
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return page(out, f.Pagination), len(out), nil
}

func (r *labTechnicians) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, t := range r.technicians {
		if t.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *labTechnicians) AssignTest(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if t.CurrentWorkload >= t.MaxConcurrentTests {
		return nil, apperrors.Capacity(model.MaxWorkloadMessage)
	}
	t.CurrentWorkload++
	c := *t
	return &c, nil
}

func (r *labTechnicians) CompleteTest(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if t.CurrentWorkload > 0 {
		t.CurrentWorkload--
	}
	c := *t
	return &c, nil
}

func (s *Store) countAssigned(id uuid.UUID, statuses []model.LabRequestStatus) int {
	n := 0
	for _, req := range s.requests {
		if req.LabTechnicianID != nil && *req.LabTechnicianID == id && req.Status.In(statuses) {
			n++
		}
	}
	return n
}

func (r *labTechnicians) activeCount(id uuid.UUID) int {
	return (*Store)(r).countAssigned(id, model.ActiveStatuses)
}

func (r *labTechnicians) RecountWorkload(ctx context.Context, id uuid.UUID) (*model.LabTechnician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return nil, err
	}
	t.CurrentWorkload = r.activeCount(id)
	c := *t
	return &c, nil
}

func (r *labTechnicians) ReconcileWorkloads(ctx context.Context) ([]*model.WorkloadCorrection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return nil, err
	}
	corrections := []*model.WorkloadCorrection{}
	for id, t := range r.technicians {
		if !t.IsActive {
			continue
		}
		if actual := r.activeCount(id); actual != t.CurrentWorkload {
			corrections = append(corrections, &model.WorkloadCorrection{TechnicianID: id, Previous: t.CurrentWorkload, Current: actual})
			t.CurrentWorkload = actual
		}
	}
	return corrections, nil
}

func (r *labTechnicians) FindLeastLoaded(ctx context.Context) (*model.LabTechnician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.LabTechnician
	bestPending := 0
	for id, t := range r.technicians {
		pending := (*Store)(r).countAssigned(id, model.PendingStatuses)
		if !t.CanTakeAssignment(pending) {
			continue
		}
		if best == nil || pending < bestPending ||
			(pending == bestPending && t.CurrentWorkload < best.CurrentWorkload) ||
			(pending == bestPending && t.CurrentWorkload == best.CurrentWorkload && t.PerformanceScore > best.PerformanceScore) {
			best, bestPending = t, pending
		}
	}
	if best == nil {
		return nil, apperrors.NotFound("available lab technician", nil)
	}
	c := *best
	return &c, nil
}

func (r *labTechnicians) UpdatePerformanceScore(ctx context.Context, id uuid.UUID, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return err
	}
	t.PerformanceScore = score
	return nil
}

// SetWorkload overwrites a technician's stored counter, for drift tests.
func (s *Store) SetWorkload(id uuid.UUID, workload int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.technicians[id]; ok {
		t.CurrentWorkload = workload
	}
}

type labTestRequests Store

func (r *labTestRequests) Create(ctx context.Context, req *model.LabTestRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return err
	}
	now := time.Now()
	req.ID, req.CreatedAt, req.UpdatedAt = uuid.New(), now, now
	if req.RequestedDate.IsZero() {
		req.RequestedDate = now
	}
	c := *req
	r.requests[req.ID] = &c
	return nil
}

func (r *labTestRequests) Get(ctx context.Context, id uuid.UUID) (*model.LabTestRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return nil, err
	}
	req, ok := r.requests[id]
	if !ok {
		return nil, apperrors.NotFound("lab test request", nil)
	}
	c := *req
	return &c, nil
}

func (r *labTestRequests) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LabTestRequest, error) {
	return r.Get(ctx, id)
}

func (r *labTestRequests) Update(ctx context.Context, req *model.LabTestRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return err
	}
	if _, ok := r.requests[req.ID]; !ok {
		return apperrors.NotFound("lab test request", nil)
	}
	req.UpdatedAt = time.Now()
	c := *req
	r.requests[req.ID] = &c
	return nil
}

func (r *labTestRequests) List(ctx context.Context, f *model.LabTestRequestFilters) ([]*model.LabTestRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LabTestRequest
	for _, req := range r.requests {
		switch {
		case f.Status != "" && req.Status != f.Status,
			f.Priority != "" && req.Priority != f.Priority,
			f.PatientID != nil && req.PatientID != *f.PatientID,
			f.DoctorID != nil && req.DoctorID != *f.DoctorID,
			f.LabTechnicianID != nil && (req.LabTechnicianID == nil || *req.LabTechnicianID != *f.LabTechnicianID),
			f.IsCritical != nil && req.IsCritical != *f.IsCritical:
			continue
		}
		c := *req
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedDate.After(out[j].RequestedDate) })
	return page(out, f.Pagination), len(out), nil
}

func (r *labTestRequests) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]*model.LabTestRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return nil, err
	}
	out := []*model.LabTestRequest{}
	for _, req := range r.requests {
		if req.LabTechnicianID != nil && *req.LabTechnicianID == technicianID {
			c := *req
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *labTestRequests) CountPending(ctx context.Context, technicianID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return 0, err
	}
	return (*Store)(r).countAssigned(technicianID, model.PendingStatuses), nil
}

// PutRequest stores req as-is, keeping its dates and status.
func (s *Store) PutRequest(req *model.LabTestRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	c := *req
	s.requests[req.ID] = &c
}

type labDashboards Store

func (r *labDashboards) GetByTechnician(ctx context.Context, technicianID uuid.UUID) (*model.LabDashboard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[technicianID]
	if !ok {
		return nil, apperrors.NotFound("lab dashboard", nil)
	}
	c := *d
	return &c, nil
}

func (r *labDashboards) Upsert(ctx context.Context, d *model.LabDashboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return err
	}
	now := time.Now()
	if existing, ok := r.dashboards[d.LabTechnicianID]; ok {
		d.ID, d.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	c := *d
	r.dashboards[d.LabTechnicianID] = &c
	return nil
}

type outbox Store

func (r *outbox) Create(ctx context.Context, e *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return err
	}
	now := time.Now()
	e.ID, e.CreatedAt, e.UpdatedAt = uuid.New(), now, now
	e.Status = model.OutboxStatusPending
	c := *e
	r.outbox = append(r.outbox, &c)
	return nil
}

func (r *outbox) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*Store)(r).takeFail(); err != nil {
		return nil, err
	}
	out := []*model.OutboxEvent{}
	for _, e := range r.outbox {
		if e.Status == model.OutboxStatusPending && len(out) < limit {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *outbox) find(id uuid.UUID) *model.OutboxEvent {
	for i, e := range r.outbox {
		if e.ID == id {
			// copy on write so snapshots stay untouched
			c := *e
			r.outbox[i] = &c
			return &c
		}
	}
	return nil
}

func (r *outbox) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.find(id); e != nil {
		now := time.Now()
		e.Status, e.ProcessedAt, e.ErrorMessage = model.OutboxStatusProcessed, &now, nil
	}
	return nil
}

func (r *outbox) MarkFailed(ctx context.Context, id uuid.UUID, msg string, maxFailures int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.find(id); e != nil {
		e.RetryCount++
		e.ErrorMessage = &msg
		if e.RetryCount >= maxFailures {
			e.Status = model.OutboxStatusFailed
		}
	}
	return nil
}

func (r *outbox) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*model.OutboxEvent
	var n int64
	for _, e := range r.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.outbox = kept
	return n, nil
}
