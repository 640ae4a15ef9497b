package labtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/repository/repotest"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
	"github.com/jwalitptl/lab-api/pkg/logger"
)

// countingRepo counts Get calls that reach the repository.
type countingRepo struct {
	repository.LabTestRepository
	gets int
}

func (r *countingRepo) Get(ctx context.Context, id uuid.UUID) (*model.LabTest, error) {
	r.gets++
	return r.LabTestRepository.Get(ctx, id)
}

func newService(t *testing.T) (*Service, *countingRepo) {
	t.Helper()
	repo := &countingRepo{LabTestRepository: repotest.NewStore().LabTests()}
	return NewService(repo, time.Minute, logger.Nop()), repo
}

func cbc() *model.CreateLabTestRequest {
	return &model.CreateLabTestRequest{
		Name:       "Complete Blood Count",
		Category:   "HEMATOLOGY",
		Price:      25,
		Duration:   30,
		SampleType: "BLOOD",
	}
}

func TestCreate_DefaultsActive(t *testing.T) {
	svc, _ := newService(t)

	test, err := svc.Create(context.Background(), cbc())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, test.ID)
	assert.True(t, test.IsActive)
	assert.Equal(t, model.CategoryHematology, test.Category)
	assert.Equal(t, 30, test.DurationMinutes)
}

func TestCreate_DuplicateNameInCategory(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, cbc())
	require.NoError(t, err)
	_, err = svc.Create(ctx, cbc())
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))

	other := cbc()
	other.Category = "OTHER"
	_, err = svc.Create(ctx, other)
	assert.NoError(t, err)
}

func TestGet_CachesAndUpdateEvicts(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	test, err := svc.Create(ctx, cbc())
	require.NoError(t, err)

	_, err = svc.Get(ctx, test.ID)
	require.NoError(t, err)
	got, err := svc.Get(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.gets)

	// callers may mutate what they get without touching the cache
	got.Name = "mutated"
	again, err := svc.Get(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "Complete Blood Count", again.Name)

	price := 30.0
	_, err = svc.Update(ctx, test.ID, &model.UpdateLabTestRequest{Price: &price})
	require.NoError(t, err)

	updated, err := svc.Get(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, updated.Price)
}

func TestGetActive_RejectsDeactivated(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	test, err := svc.Create(ctx, cbc())
	require.NoError(t, err)

	_, err = svc.GetActive(ctx, test.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, test.ID))
	_, err = svc.GetActive(ctx, test.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.Code(err))
	assert.Equal(t, "lab test is not active", err.Error())
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestList_ExcludesInactiveByDefault(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	active, err := svc.Create(ctx, cbc())
	require.NoError(t, err)
	lipid := cbc()
	lipid.Name, lipid.Category = "Lipid Panel", "BIOCHEMISTRY"
	inactive, err := svc.Create(ctx, lipid)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, inactive.ID))

	tests, total, err := svc.List(ctx, &model.LabTestFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tests, 1)
	assert.Equal(t, active.ID, tests[0].ID)

	_, total, err = svc.List(ctx, &model.LabTestFilters{IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
