package labtechnician

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository/repotest"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

func setup(t *testing.T) (*Service, *repotest.Store, *metrics.Metrics) {
	t.Helper()
	store := repotest.NewStore()
	m := metrics.NewNop()
	return NewService(store.LabTechnicians(), 5, logger.Nop(), m), store, m
}

func register(t *testing.T, svc *Service, max int) *model.LabTechnician {
	t.Helper()
	tech, err := svc.Create(context.Background(), &model.CreateLabTechnicianRequest{
		UserID:             uuid.New(),
		EmployeeID:         "EMP-" + uuid.NewString()[:8],
		Specialization:     "hematology",
		MaxConcurrentTests: max,
	})
	require.NoError(t, err)
	return tech
}

func TestCreate_Defaults(t *testing.T) {
	svc, _, _ := setup(t)

	tech := register(t, svc, 0)
	assert.Equal(t, 5, tech.MaxConcurrentTests)
	assert.True(t, tech.IsAvailable)
	assert.True(t, tech.IsActive)
	assert.Zero(t, tech.CurrentWorkload)
}

func TestCreate_DuplicateUser(t *testing.T) {
	svc, _, _ := setup(t)
	userID := uuid.New()

	_, err := svc.Create(context.Background(), &model.CreateLabTechnicianRequest{UserID: userID, EmployeeID: "E1"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), &model.CreateLabTechnicianRequest{UserID: userID, EmployeeID: "E2"})
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))
}

// Two assigns fill capacity, the third is rejected without mutation, and a
// completion frees a slot again.
func TestApplyWorkloadAction_CapacityScenario(t *testing.T) {
	svc, _, m := setup(t)
	ctx := context.Background()
	tech := register(t, svc, 2)

	snap, err := svc.ApplyWorkloadAction(ctx, tech.ID, model.WorkloadAssign)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentWorkload)
	snap, err = svc.ApplyWorkloadAction(ctx, tech.ID, model.WorkloadAssign)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentWorkload)
	assert.False(t, snap.CanAcceptMoreTests)

	_, err = svc.ApplyWorkloadAction(ctx, tech.ID, model.WorkloadAssign)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCapacity, apperrors.Code(err))
	assert.Contains(t, err.Error(), "maximum workload")

	snap, err = svc.GetWorkload(ctx, tech.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentWorkload)

	snap, err = svc.ApplyWorkloadAction(ctx, tech.ID, model.WorkloadComplete)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentWorkload)

	snap, err = svc.ApplyWorkloadAction(ctx, tech.ID, model.WorkloadAssign)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentWorkload)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.WorkloadActions.WithLabelValues("assign", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkloadActions.WithLabelValues("assign", "capacity")))
}

func TestApplyWorkloadAction_CompleteFloorsAtZero(t *testing.T) {
	svc, _, _ := setup(t)
	tech := register(t, svc, 2)

	snap, err := svc.ApplyWorkloadAction(context.Background(), tech.ID, model.WorkloadComplete)
	require.NoError(t, err)
	assert.Zero(t, snap.CurrentWorkload)
}

func TestApplyWorkloadAction_UpdateRecounts(t *testing.T) {
	svc, store, _ := setup(t)
	tech := register(t, svc, 5)
	id := tech.ID

	for _, status := range []model.LabRequestStatus{
		model.StatusRequested, model.StatusSampleCollected, model.StatusInProgress,
		model.StatusInProgress, model.StatusCompleted,
	} {
		store.PutRequest(&model.LabTestRequest{LabTechnicianID: &id, Status: status})
	}
	store.SetWorkload(id, 4)

	snap, err := svc.ApplyWorkloadAction(context.Background(), id, model.WorkloadUpdate)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.CurrentWorkload)

	again, err := svc.ApplyWorkloadAction(context.Background(), id, model.WorkloadUpdate)
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestApplyWorkloadAction_Invalid(t *testing.T) {
	svc, _, _ := setup(t)
	tech := register(t, svc, 2)

	_, err := svc.ApplyWorkloadAction(context.Background(), tech.ID, "reset")
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))

	_, err = svc.ApplyWorkloadAction(context.Background(), uuid.New(), model.WorkloadAssign)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdate_UnavailableCannotAccept(t *testing.T) {
	svc, _, _ := setup(t)
	tech := register(t, svc, 2)
	unavailable := false

	updated, err := svc.Update(context.Background(), tech.ID, &model.UpdateLabTechnicianRequest{IsAvailable: &unavailable})
	require.NoError(t, err)
	assert.False(t, updated.IsAvailable)

	snap, err := svc.GetWorkload(context.Background(), tech.ID)
	require.NoError(t, err)
	assert.False(t, snap.CanAcceptMoreTests)
}

func TestReconcile_ReportsDrift(t *testing.T) {
	svc, store, m := setup(t)
	tech := register(t, svc, 5)
	steady := register(t, svc, 5)
	id := tech.ID
	store.PutRequest(&model.LabTestRequest{LabTechnicianID: &id, Status: model.StatusInProgress})
	store.SetWorkload(id, 3)

	corrections, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, id, corrections[0].TechnicianID)
	assert.Equal(t, 3, corrections[0].Previous)
	assert.Equal(t, 1, corrections[0].Current)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkloadDrift))

	snap, err := svc.GetWorkload(context.Background(), steady.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.CurrentWorkload)

	corrections, err = svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corrections)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkloadDrift))
}
