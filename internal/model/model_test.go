package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    LabRequestStatus
		to      LabRequestStatus
		wantErr bool
	}{
		{"requested to sample collected", StatusRequested, StatusSampleCollected, false},
		{"requested skips to completed", StatusRequested, StatusCompleted, false},
		{"in progress to completed", StatusInProgress, StatusCompleted, false},
		{"completed to verified", StatusCompleted, StatusVerified, false},
		{"cancel from in progress", StatusInProgress, StatusCancelled, false},
		{"cancel from completed", StatusCompleted, StatusCancelled, false},
		{"backwards", StatusCompleted, StatusInProgress, true},
		{"requested straight to verified", StatusRequested, StatusVerified, true},
		{"out of verified", StatusVerified, StatusCancelled, true},
		{"out of cancelled", StatusCancelled, StatusRequested, true},
		{"unknown target", StatusRequested, LabRequestStatus("DONE"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateStatus_StampsDates(t *testing.T) {
	requested := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	r := &LabTestRequest{Status: StatusRequested, Priority: PriorityNormal, RequestedDate: requested}

	t1 := requested.Add(30 * time.Minute)
	require.NoError(t, r.UpdateStatus(StatusSampleCollected, t1))
	require.NotNil(t, r.SampleCollectedDate)
	assert.Equal(t, t1, *r.SampleCollectedDate)

	t2 := requested.Add(time.Hour)
	require.NoError(t, r.UpdateStatus(StatusInProgress, t2))
	assert.Equal(t, t2, *r.StartedDate)
	assert.Equal(t, t1, *r.SampleCollectedDate)

	t3 := requested.Add(3 * time.Hour)
	require.NoError(t, r.UpdateStatus(StatusCompleted, t3))
	assert.Equal(t, t3, *r.CompletedDate)
	assert.Equal(t, t2, *r.StartedDate)

	// same status again leaves stamps alone
	require.NoError(t, r.UpdateStatus(StatusCompleted, t3.Add(time.Hour)))
	assert.Equal(t, t3, *r.CompletedDate)

	t4 := requested.Add(5 * time.Hour)
	require.NoError(t, r.UpdateStatus(StatusVerified, t4))
	assert.Equal(t, t4, *r.VerifiedDate)
	assert.Equal(t, StatusVerified, r.Status)

	assert.Error(t, r.UpdateStatus(StatusCancelled, t4))
	assert.Equal(t, StatusVerified, r.Status)
}

func TestUpdateStatus_SkipLeavesEarlierStampsNil(t *testing.T) {
	now := time.Now()
	r := &LabTestRequest{Status: StatusRequested, RequestedDate: now.Add(-time.Hour)}

	require.NoError(t, r.UpdateStatus(StatusCompleted, now))
	assert.Nil(t, r.SampleCollectedDate)
	assert.Nil(t, r.StartedDate)
	require.NotNil(t, r.CompletedDate)
}

func TestTurnaroundTime(t *testing.T) {
	requested := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	r := &LabTestRequest{Status: StatusInProgress, RequestedDate: requested}
	assert.Nil(t, r.TurnaroundTime())

	completed := requested.Add(90 * time.Minute)
	r.CompletedDate = &completed
	tat := r.TurnaroundTime()
	require.NotNil(t, tat)
	assert.InDelta(t, 1.5, *tat, 1e-9)
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	completedLate := now.Add(-time.Hour)
	completedFast := now.Add(-47 * time.Hour)

	tests := []struct {
		name string
		req  LabTestRequest
		want bool
	}{
		{
			name: "stat pending past one hour",
			req:  LabTestRequest{Status: StatusRequested, Priority: PriorityStat, RequestedDate: now.Add(-2 * time.Hour)},
			want: true,
		},
		{
			name: "normal pending within a day",
			req:  LabTestRequest{Status: StatusInProgress, Priority: PriorityNormal, RequestedDate: now.Add(-2 * time.Hour)},
			want: false,
		},
		{
			name: "cancelled never overdue",
			req:  LabTestRequest{Status: StatusCancelled, Priority: PriorityStat, RequestedDate: now.Add(-48 * time.Hour)},
			want: false,
		},
		{
			name: "completed judged on turnaround",
			req: LabTestRequest{
				Status: StatusCompleted, Priority: PriorityNormal,
				RequestedDate: now.Add(-48 * time.Hour), CompletedDate: &completedFast,
			},
			want: false,
		},
		{
			name: "completed late",
			req: LabTestRequest{
				Status: StatusCompleted, Priority: PriorityHigh,
				RequestedDate: now.Add(-48 * time.Hour), CompletedDate: &completedLate,
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.IsOverdue(now, DefaultSLA))
		})
	}
}

func TestSLAFallsBackToNormal(t *testing.T) {
	sla := SLA{PriorityStat: 30 * time.Minute}
	assert.Equal(t, 30*time.Minute, sla.For(PriorityStat))
	assert.Equal(t, 24*time.Hour, sla.For(PriorityLow))
}

func TestUpdateLabTestRequest_ApplyAndRef(t *testing.T) {
	test := &LabTest{
		Base:            Base{ID: uuid.New()},
		Name:            "CBC",
		Category:        CategoryHematology,
		DurationMinutes: 30,
		SampleType:      SampleBlood,
		IsActive:        true,
	}
	name := "Complete Blood Count"
	duration := 40
	inactive := false

	(&UpdateLabTestRequest{Name: &name, Duration: &duration, IsActive: &inactive}).Apply(test)
	assert.Equal(t, "Complete Blood Count", test.Name)
	assert.Equal(t, 40, test.DurationMinutes)
	assert.False(t, test.IsActive)
	assert.Equal(t, CategoryHematology, test.Category)

	ref := test.Ref()
	assert.Equal(t, test.ID, ref.ID)
	assert.Equal(t, SampleBlood, ref.SampleType)
	assert.Equal(t, 40, ref.Duration)
}

func TestCanTakeAssignment(t *testing.T) {
	tech := &LabTechnician{MaxConcurrentTests: 2, IsAvailable: true, IsActive: true}
	assert.True(t, tech.CanTakeAssignment(1))
	assert.False(t, tech.CanTakeAssignment(2))

	tech.CurrentWorkload = 2
	assert.False(t, tech.CanTakeAssignment(0))

	tech.CurrentWorkload = 0
	tech.IsActive = false
	assert.False(t, tech.CanTakeAssignment(0))
}

func TestCanAcceptMoreTests(t *testing.T) {
	tech := &LabTechnician{CurrentWorkload: 4, MaxConcurrentTests: 5, IsAvailable: true}
	assert.True(t, tech.CanAcceptMoreTests())

	tech.CurrentWorkload = 5
	assert.False(t, tech.CanAcceptMoreTests())
	assert.False(t, tech.Snapshot().CanAcceptMoreTests)

	tech.CurrentWorkload = 0
	tech.IsAvailable = false
	assert.False(t, tech.CanAcceptMoreTests())
}

func TestComputeDashboardStats(t *testing.T) {
	now := time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	requests := []*LabTestRequest{
		// completed today in 2h
		{Status: StatusCompleted, Priority: PriorityNormal, RequestedDate: now.Add(-4 * time.Hour), CompletedDate: at(-2 * time.Hour), IsCritical: true},
		// verified yesterday in 4h, overdue for STAT
		{Status: StatusVerified, Priority: PriorityStat, RequestedDate: now.Add(-30 * time.Hour), CompletedDate: at(-26 * time.Hour)},
		{Status: StatusInProgress, Priority: PriorityNormal, RequestedDate: now.Add(-time.Hour)},
		{Status: StatusRequested, Priority: PriorityLow, RequestedDate: now.Add(-time.Hour), IsCritical: true},
		{Status: StatusCancelled, Priority: PriorityLow, RequestedDate: now.Add(-time.Hour)},
	}

	stats := ComputeDashboardStats(requests, now, DefaultSLA)
	assert.Equal(t, 2, stats.TotalTestsCompleted)
	assert.Equal(t, 1, stats.TestsToday)
	assert.Equal(t, 2, stats.PendingTests)
	assert.Equal(t, 2, stats.CriticalFindings)
	assert.InDelta(t, 3.0, stats.AverageTurnaroundTime, 1e-9)
	assert.InDelta(t, 50.0, stats.OnTimeRate, 1e-9)

	d := &LabDashboard{LabTechnicianID: uuid.New()}
	d.Apply(stats, now)
	assert.Equal(t, 2, d.TotalTestsCompleted)
	require.NotNil(t, d.LastActivity)
	assert.Equal(t, now, *d.LastActivity)
}

func TestComputeDashboardStats_Empty(t *testing.T) {
	stats := ComputeDashboardStats(nil, time.Now(), DefaultSLA)
	assert.Equal(t, DashboardStats{}, stats)
}

func TestPaginationNormalize(t *testing.T) {
	p := Pagination{}.Normalize()
	assert.Equal(t, DefaultPageSize, p.Limit)

	p = Pagination{Limit: 10000, Offset: -3}.Normalize()
	assert.Equal(t, MaxPageSize, p.Limit)
	assert.Equal(t, 0, p.Offset)
}

func TestSessionHasRole(t *testing.T) {
	var nilSession *Session
	assert.False(t, nilSession.HasRole(RoleAdmin))

	s := &Session{UserID: uuid.New(), Role: RoleLabTechnician}
	assert.True(t, s.HasRole(RoleAdmin, RoleLabTechnician))
	assert.False(t, s.HasRole(RoleDoctor))
}
