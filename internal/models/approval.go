package models

import (
	"fmt"
	"time"
)

// ItemKind distinguishes the two approvable entities.
type ItemKind string

const (
	ItemKindObjective   ItemKind = "objective"
	ItemKindRubricLevel ItemKind = "rubric_level"
)

// ApprovalAction enumerates ledger entries.
type ApprovalAction string

const (
	ApprovalActionSubmit   ApprovalAction = "submit"
	ApprovalActionApproved ApprovalAction = "approved"
	ApprovalActionRejected ApprovalAction = "rejected"
	ApprovalActionEdited   ApprovalAction = "edited"
	ApprovalActionReopen   ApprovalAction = "reopen"
)

// Valid reports whether the action is one of the known ledger actions.
func (a ApprovalAction) Valid() bool {
	switch a {
	case ApprovalActionSubmit, ApprovalActionApproved, ApprovalActionRejected, ApprovalActionEdited, ApprovalActionReopen:
		return true
	}
	return false
}

// IsVote reports whether the action counts toward quorum.
func (a ApprovalAction) IsVote() bool {
	return a == ApprovalActionApproved || a == ApprovalActionRejected
}

// StartsEpoch reports whether the action closes every earlier vote.
func (a ApprovalAction) StartsEpoch() bool {
	return a == ApprovalActionEdited || a == ApprovalActionReopen
}

// ApprovalStatus is the derived state of an approvable item or group.
type ApprovalStatus string

const (
	ApprovalStatusDraft    ApprovalStatus = "draft"
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ApprovalEvent is one immutable ledger entry.
type ApprovalEvent struct {
	ID                  string         `db:"id" json:"id"`
	ItemID              string         `db:"item_id" json:"itemId"`
	Sequence            int64          `db:"sequence" json:"sequence"`
	TeacherID           string         `db:"teacher_id" json:"teacherId"`
	TeacherName         string         `db:"teacher_name" json:"teacherName"`
	Action              ApprovalAction `db:"action" json:"action"`
	PreviousDescription *string        `db:"previous_description" json:"previousDescription,omitempty"`
	Notes               *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"createdAt"`
}

// ApprovableItem is an Objective or a RubricLevel together with its cached projection.
// ApprovedEventID is the event that moved the item into approved, cleared when it leaves.
type ApprovableItem struct {
	ID              string         `db:"id" json:"id"`
	Kind            ItemKind       `db:"kind" json:"kind"`
	Description     string         `db:"description" json:"description"`
	Status          ApprovalStatus `db:"status" json:"status"`
	OrderIndex      int            `db:"order_index" json:"orderIndex"`
	Level           *int           `db:"level" json:"level,omitempty"`
	ParentID        *string        `db:"parent_id" json:"parentId,omitempty"`
	BnccCode        string         `db:"bncc_code" json:"bnccCode"`
	DisciplineID    int64          `db:"discipline_id" json:"disciplineId"`
	YearLevel       int            `db:"year_level" json:"yearLevel"`
	Bimester        int            `db:"bimester" json:"bimester"`
	AIExplanation   *string        `db:"ai_explanation" json:"aiExplanation,omitempty"`
	CreatedBy       *string        `db:"created_by" json:"createdBy,omitempty"`
	LastEventID     *string        `db:"last_event_id" json:"lastEventId,omitempty"`
	ApprovedEventID *string        `db:"approved_event_id" json:"approvedEventId,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// SkillKey returns the grouping key shared by objectives of one skill.
func (i *ApprovableItem) SkillKey() SkillKey {
	return SkillKey{
		BnccCode:     i.BnccCode,
		DisciplineID: i.DisciplineID,
		YearLevel:    i.YearLevel,
		Bimester:     i.Bimester,
	}
}

// SkillKey identifies a skill group.
type SkillKey struct {
	BnccCode     string `json:"bnccCode" form:"bnccCode" validate:"required"`
	DisciplineID int64  `json:"disciplineId" form:"disciplineId" validate:"required,gt=0"`
	YearLevel    int    `json:"yearLevel" form:"yearLevel" validate:"required,gt=0"`
	Bimester     int    `json:"bimester" form:"bimester" validate:"required,min=1,max=4"`
}

// String renders the key in a cache friendly form.
func (k SkillKey) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", k.BnccCode, k.DisciplineID, k.YearLevel, k.Bimester)
}

// TeacherRef is a staffing record for a teacher eligible to approve.
type TeacherRef struct {
	ID   string   `db:"id" json:"id"`
	Name string   `db:"name" json:"name"`
	Role UserRole `db:"role" json:"role"`
}

// Actor is the explicit caller identity for every workflow operation.
type Actor struct {
	TeacherID string
	Name      string
	Role      UserRole
}

// Elevated reports whether the actor may reopen approved items.
func (a Actor) Elevated() bool {
	switch a.Role {
	case RoleSuperAdmin, RoleAdmin, RoleCoordinator:
		return true
	}
	return false
}

// ApprovalTally is the full result of evaluating a ledger.
type ApprovalTally struct {
	Status      ApprovalStatus `json:"status"`
	Approved    []string       `json:"approved"`
	Rejected    []string       `json:"rejected"`
	Outstanding []string       `json:"outstanding"`
	NonBinding  []string       `json:"nonBinding,omitempty"`
	EpochStart  *string        `json:"epochStartEventId,omitempty"`
}

// StatusTransition captures a projection change produced by an append.
type StatusTransition struct {
	ItemID    string         `json:"itemId"`
	Kind      ItemKind       `json:"kind"`
	EventID   string         `json:"eventId"`
	ActorID   string         `json:"actorId"`
	ActorName string         `json:"actorName,omitempty"`
	From      ApprovalStatus `json:"from"`
	To        ApprovalStatus `json:"to"`
}

// DescriptionRevision is one historical version of an item's text.
type DescriptionRevision struct {
	Version     int        `json:"version"`
	Description string     `json:"description"`
	EventID     *string    `json:"eventId,omitempty"`
	EditedBy    *string    `json:"editedBy,omitempty"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
}

// DispatchRecord tracks a side effect keyed by item and transition event.
type DispatchRecord struct {
	ItemID    string    `json:"itemId"`
	EventID   string    `json:"eventId"`
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Dispatch states.
const (
	DispatchStateQueued    = "queued"
	DispatchStateCompleted = "completed"
	DispatchStateSkipped   = "skipped"
	DispatchStateFailed    = "failed"
)
