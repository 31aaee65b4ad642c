package service

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

const (
	draft    = models.ApprovalStatusDraft
	pending  = models.ApprovalStatusPending
	approved = models.ApprovalStatusApproved
	rejected = models.ApprovalStatusRejected
)

func TestRollupStatuses(t *testing.T) {
	cases := []struct {
		name     string
		statuses []models.ApprovalStatus
		want     models.ApprovalStatus
	}{
		{"empty", nil, draft},
		{"all draft", []models.ApprovalStatus{draft, draft}, draft},
		{"all approved", []models.ApprovalStatus{approved, approved}, approved},
		{"rejection wins", []models.ApprovalStatus{approved, pending, rejected, draft}, rejected},
		{"pending over approved", []models.ApprovalStatus{approved, pending}, pending},
		{"draft and approved mix", []models.ApprovalStatus{draft, approved}, pending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RollupStatuses(tc.statuses))
		})
	}
}

func TestObjectiveCompositeWithoutRubricsIsPending(t *testing.T) {
	assert.Equal(t, pending, ObjectiveComposite(approved, nil))
	assert.Equal(t, approved, ObjectiveComposite(approved, []models.ApprovalStatus{approved, approved, approved, approved}))
	assert.Equal(t, rejected, ObjectiveComposite(approved, []models.ApprovalStatus{approved, rejected}))
	assert.Equal(t, draft, ObjectiveComposite(draft, nil))
}

func TestSkillRollupStatus(t *testing.T) {
	members := []SkillGroupMember{
		{Objective: approved, Rubrics: []models.ApprovalStatus{approved, approved}},
		{Objective: approved},
	}
	assert.Equal(t, pending, SkillRollupStatus(members))

	members[1].Rubrics = []models.ApprovalStatus{approved}
	assert.Equal(t, approved, SkillRollupStatus(members))

	assert.Equal(t, draft, SkillRollupStatus(nil))
}

func TestBuildObjectiveComposite(t *testing.T) {
	objective := models.ApprovableItem{ID: "obj-1", Kind: models.ItemKindObjective, Status: approved}
	composite := BuildObjectiveComposite(objective, nil)
	assert.False(t, composite.HasRubrics)
	assert.Equal(t, pending, composite.CompositeStatus)
	assert.NotNil(t, composite.RubricLevels)

	rubrics := []models.ApprovableItem{{ID: "lvl-1", Status: approved}, {ID: "lvl-2", Status: pending}}
	composite = BuildObjectiveComposite(objective, rubrics)
	assert.True(t, composite.HasRubrics)
	assert.Equal(t, pending, composite.CompositeStatus)
}

func TestCountObjectiveStatuses(t *testing.T) {
	counts := CountObjectiveStatuses([]models.ApprovalStatus{draft, approved, approved, rejected, pending})
	assert.Equal(t, dto.StatusCounts{Draft: 1, Pending: 1, Approved: 2, Rejected: 1}, counts)
}

func TestRollupStatusesIsOrderIndependent(t *testing.T) {
	all := []models.ApprovalStatus{draft, pending, approved, rejected}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("shuffling the multiset never changes the rollup", prop.ForAll(
		func(codes []int, seed int64) bool {
			statuses := make([]models.ApprovalStatus, len(codes))
			for i, code := range codes {
				statuses[i] = all[code]
			}
			want := RollupStatuses(statuses)
			rand.New(rand.NewSource(seed)).Shuffle(len(statuses), func(i, j int) {
				statuses[i], statuses[j] = statuses[j], statuses[i]
			})
			return RollupStatuses(statuses) == want
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
