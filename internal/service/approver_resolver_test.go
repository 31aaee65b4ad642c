package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

type fakeStaffing struct {
	teachers map[string][]models.TeacherRef
	err      error
	calls    int
}

func (f *fakeStaffing) TeachersFor(_ context.Context, disciplineID int64, yearLevel int) ([]models.TeacherRef, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.teachers[staffingSlot(disciplineID, yearLevel)], nil
}

func staffingSlot(disciplineID int64, yearLevel int) string {
	return models.SkillKey{DisciplineID: disciplineID, YearLevel: yearLevel}.String()
}

func TestApproverResolverSortsAndDeduplicates(t *testing.T) {
	staffing := &fakeStaffing{teachers: map[string][]models.TeacherRef{
		staffingSlot(3, 6): {{ID: "T2"}, {ID: "T1"}, {ID: "T2"}, {ID: ""}},
	}}
	resolver := NewApproverResolver(staffing, newMemoryApprovalStore(), nil)

	item := objectiveFixture("obj-1", 1)
	teachers, err := resolver.Resolve(context.Background(), &item)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, TeacherIDs(teachers))
}

func TestApproverResolverIsNotCached(t *testing.T) {
	staffing := &fakeStaffing{teachers: map[string][]models.TeacherRef{staffingSlot(3, 6): {{ID: "T1"}}}}
	resolver := NewApproverResolver(staffing, newMemoryApprovalStore(), nil)
	item := objectiveFixture("obj-1", 1)

	first, err := resolver.Resolve(context.Background(), &item)
	require.NoError(t, err)
	staffing.teachers[staffingSlot(3, 6)] = []models.TeacherRef{{ID: "T1"}, {ID: "T3"}}
	second, err := resolver.Resolve(context.Background(), &item)
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
	assert.Equal(t, 2, staffing.calls)
}

func TestApproverResolverUsesParentForRubricLevels(t *testing.T) {
	store := newMemoryApprovalStore()
	store.put(objectiveFixture("obj-1", 1))
	staffing := &fakeStaffing{teachers: map[string][]models.TeacherRef{staffingSlot(3, 6): {{ID: "T1"}}}}
	resolver := NewApproverResolver(staffing, store, nil)

	parent := "obj-1"
	level := models.ApprovableItem{ID: "lvl-1", Kind: models.ItemKindRubricLevel, ParentID: &parent}
	teachers, err := resolver.Resolve(context.Background(), &level)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, TeacherIDs(teachers))

	orphan := "missing"
	level.ParentID = &orphan
	_, err = resolver.Resolve(context.Background(), &level)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestApproverResolverEmptyStaffing(t *testing.T) {
	resolver := NewApproverResolver(&fakeStaffing{}, newMemoryApprovalStore(), nil)
	item := objectiveFixture("obj-1", 1)
	teachers, err := resolver.Resolve(context.Background(), &item)
	require.NoError(t, err)
	assert.Empty(t, teachers)
}

func TestApproverResolverStorageFailure(t *testing.T) {
	resolver := NewApproverResolver(&fakeStaffing{err: errors.New("timeout")}, newMemoryApprovalStore(), nil)
	item := objectiveFixture("obj-1", 1)
	_, err := resolver.Resolve(context.Background(), &item)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStorageUnavailable.Code, appErrors.FromError(err).Code)
}
