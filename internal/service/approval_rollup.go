package service

import (
	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

// RollupStatuses folds a multiset of statuses. Rejection wins, then pending; a group
// is draft only when every member is draft and approved only when every member is
// approved. A mix of draft and approved members is still in progress (pending).
// The empty set is draft.
func RollupStatuses(statuses []models.ApprovalStatus) models.ApprovalStatus {
	var draft, approved, pending, rejected int
	for _, status := range statuses {
		switch status {
		case models.ApprovalStatusRejected:
			rejected++
		case models.ApprovalStatusApproved:
			approved++
		case models.ApprovalStatusDraft:
			draft++
		default:
			pending++
		}
	}
	switch {
	case rejected > 0:
		return models.ApprovalStatusRejected
	case pending > 0:
		return models.ApprovalStatusPending
	case len(statuses) == 0 || draft == len(statuses):
		return models.ApprovalStatusDraft
	case approved == len(statuses):
		return models.ApprovalStatusApproved
	default:
		return models.ApprovalStatusPending
	}
}

// ObjectiveComposite combines an objective with its rubric levels. An approved
// objective without levels is still awaiting rubrics and therefore pending.
func ObjectiveComposite(objective models.ApprovalStatus, rubrics []models.ApprovalStatus) models.ApprovalStatus {
	if objective == models.ApprovalStatusApproved && len(rubrics) == 0 {
		return models.ApprovalStatusPending
	}
	all := make([]models.ApprovalStatus, 0, len(rubrics)+1)
	all = append(all, objective)
	all = append(all, rubrics...)
	return RollupStatuses(all)
}

// SkillGroupMember is an objective with the statuses of its rubric levels.
type SkillGroupMember struct {
	Objective models.ApprovalStatus
	Rubrics   []models.ApprovalStatus
}

// SkillRollupStatus derives the status of a whole skill group.
func SkillRollupStatus(members []SkillGroupMember) models.ApprovalStatus {
	composites := make([]models.ApprovalStatus, len(members))
	for i, member := range members {
		composites[i] = ObjectiveComposite(member.Objective, member.Rubrics)
	}
	return RollupStatuses(composites)
}

// BuildObjectiveComposite evaluates an objective together with its rubric levels.
// Both arguments must already carry freshly computed statuses.
func BuildObjectiveComposite(objective models.ApprovableItem, rubrics []models.ApprovableItem) dto.ObjectiveComposite {
	statuses := make([]models.ApprovalStatus, len(rubrics))
	for i := range rubrics {
		statuses[i] = rubrics[i].Status
	}
	if rubrics == nil {
		rubrics = []models.ApprovableItem{}
	}
	return dto.ObjectiveComposite{
		Objective:       objective,
		RubricLevels:    rubrics,
		HasRubrics:      len(rubrics) > 0,
		CompositeStatus: ObjectiveComposite(objective.Status, statuses),
	}
}

// CountObjectiveStatuses tallies objective statuses for dashboard summaries.
func CountObjectiveStatuses(statuses []models.ApprovalStatus) dto.StatusCounts {
	var counts dto.StatusCounts
	for _, status := range statuses {
		switch status {
		case models.ApprovalStatusApproved:
			counts.Approved++
		case models.ApprovalStatusRejected:
			counts.Rejected++
		case models.ApprovalStatusDraft:
			counts.Draft++
		default:
			counts.Pending++
		}
	}
	return counts
}
