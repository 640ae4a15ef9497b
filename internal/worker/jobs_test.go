package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository/repotest"
	"github.com/jwalitptl/lab-api/internal/service/labtechnician"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

type fakeRefresher struct {
	calls int32
	err   error
}

func (f *fakeRefresher) RefreshAll(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return 3, f.err
}

func TestDashboardRefreshWorker_Run(t *testing.T) {
	refresher := &fakeRefresher{}
	w := NewDashboardRefreshWorker(refresher, time.Minute, logger.Nop())

	require.NoError(t, w.Run(context.Background()))

	refresher.err = errors.New("database unavailable")
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestDashboardRefreshWorker_StartStopsOnCancel(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("keeps failing")}
	w := NewDashboardRefreshWorker(refresher, 5*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&refresher.calls) >= 2 },
		time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkloadReconcileWorker_Run(t *testing.T) {
	store := repotest.NewStore()
	ctx := context.Background()

	tech := &model.LabTechnician{
		UserID: uuid.New(), EmployeeID: "EMP-R", MaxConcurrentTests: 5, IsAvailable: true, IsActive: true,
	}
	require.NoError(t, store.LabTechnicians().Create(ctx, tech))
	store.SetWorkload(tech.ID, 4)
	store.PutRequest(&model.LabTestRequest{
		LabTechnicianID: &tech.ID, Status: model.StatusInProgress, Priority: model.PriorityNormal,
		RequestedDate: time.Now(),
	})

	m := metrics.NewNop()
	svc := labtechnician.NewService(store.LabTechnicians(), 5, logger.Nop(), m)
	w := NewWorkloadReconcileWorker(svc, time.Minute, logger.Nop())

	require.NoError(t, w.Run(ctx))

	got, err := store.LabTechnicians().Get(ctx, tech.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentWorkload)
}

func TestOutboxCleanupWorker_Run(t *testing.T) {
	store := repotest.NewStore()
	ctx := context.Background()
	outbox := store.Outbox()

	processed := &model.OutboxEvent{EventType: model.EventLabRequestCreated, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	pending := &model.OutboxEvent{EventType: model.EventLabRequestCreated, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	require.NoError(t, outbox.Create(ctx, processed))
	require.NoError(t, outbox.Create(ctx, pending))
	require.NoError(t, outbox.MarkProcessed(ctx, processed.ID))

	w := NewOutboxCleanupWorker(outbox, time.Hour, time.Hour, logger.Nop())

	require.NoError(t, w.Run(ctx))
	assert.Len(t, store.Events(), 2, "recently processed events are retained")

	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, w.Run(ctx))

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, pending.ID, events[0].ID)
}
