package dto

import (
	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

// SubmitRequest moves a draft into review.
type SubmitRequest struct {
	ExpectedLastEventID *string `json:"expectedLastEventId"`
}

// DecisionRequest records an approval or rejection.
type DecisionRequest struct {
	Action              models.ApprovalAction `json:"action" validate:"required,oneof=approved rejected"`
	Notes               string                `json:"notes" validate:"max=2000"`
	ExpectedLastEventID *string               `json:"expectedLastEventId"`
}

// EditRequest replaces an item's text and restarts review.
type EditRequest struct {
	Description         string  `json:"description" validate:"required,max=8000"`
	Notes               string  `json:"notes" validate:"max=2000"`
	ExpectedLastEventID *string `json:"expectedLastEventId"`
}

// ReopenRequest returns an approved item to review.
type ReopenRequest struct {
	Notes               string  `json:"notes" validate:"max=2000"`
	ExpectedLastEventID *string `json:"expectedLastEventId"`
}

// BatchDecisionRequest applies one decision to many items independently.
type BatchDecisionRequest struct {
	ItemIDs []string              `json:"itemIds" validate:"required,min=1,max=200,dive,required"`
	Action  models.ApprovalAction `json:"action" validate:"required,oneof=approved rejected"`
	Notes   string                `json:"notes" validate:"max=2000"`
}

// BatchEditItem is one entry of a batch edit.
type BatchEditItem struct {
	ItemID      string `json:"itemId" validate:"required"`
	Description string `json:"description" validate:"required,max=8000"`
}

// BatchEditRequest edits several items of a group independently.
type BatchEditRequest struct {
	Items []BatchEditItem `json:"items" validate:"required,min=1,max=200,dive"`
	Notes string          `json:"notes" validate:"max=2000"`
}

// BatchItemResult is the outcome of one item inside a batch.
type BatchItemResult struct {
	ItemID string                 `json:"itemId"`
	Status models.ApprovalStatus  `json:"status,omitempty"`
	Error  *BatchItemError        `json:"error,omitempty"`
	Tally  *models.ApprovalTally  `json:"tally,omitempty"`
	Item   *models.ApprovableItem `json:"-"`
}

// BatchItemError mirrors the error envelope for a single batch entry.
type BatchItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ItemStatusResponse is returned by every mutation and by status reads.
type ItemStatusResponse struct {
	Item              *models.ApprovableItem   `json:"item"`
	Tally             models.ApprovalTally     `json:"tally"`
	RequiredApprovers []models.TeacherRef      `json:"requiredApprovers"`
	Transition        *models.StatusTransition `json:"transition,omitempty"`
	Message           string                   `json:"message,omitempty"`
}

// HistoryResponse exposes the ledger and the reconstructed text versions.
type HistoryResponse struct {
	ItemID    string                       `json:"itemId"`
	Events    []models.ApprovalEvent       `json:"events"`
	Revisions []models.DescriptionRevision `json:"revisions"`
}

// ObjectiveComposite summarises an objective and its rubric levels.
type ObjectiveComposite struct {
	Objective       models.ApprovableItem   `json:"objective"`
	RubricLevels    []models.ApprovableItem `json:"rubricLevels"`
	HasRubrics      bool                    `json:"hasRubrics"`
	CompositeStatus models.ApprovalStatus   `json:"compositeStatus"`
}

// StatusCounts counts objectives per status for dashboards.
type StatusCounts struct {
	Draft    int `json:"draft"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// SkillRollupResponse is the derived status of a whole skill group.
type SkillRollupResponse struct {
	Key        models.SkillKey       `json:"key"`
	Status     models.ApprovalStatus `json:"status"`
	Counts     StatusCounts          `json:"counts"`
	Objectives []ObjectiveComposite  `json:"objectives"`
}

// GenerateObjectivesRequest asks the generation collaborator for new draft objectives.
type GenerateObjectivesRequest struct {
	models.SkillKey
	Quantity int `json:"quantity" validate:"required,min=1,max=10"`
}

// GeneratedText is a single generated description with optional explanation.
type GeneratedText struct {
	Description string `json:"description"`
	Explanation string `json:"explanation,omitempty"`
}

// GenerateObjectivesResponse lists the drafts created from generation.
type GenerateObjectivesResponse struct {
	Objectives []models.ApprovableItem `json:"objectives"`
}
