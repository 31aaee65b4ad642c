package service

import (
	"sort"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

// SortApprovalEvents returns a copy of events ordered by timestamp, ties broken by sequence.
func SortApprovalEvents(events []models.ApprovalEvent) []models.ApprovalEvent {
	sorted := make([]models.ApprovalEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].Sequence < sorted[j].Sequence
	})
	return sorted
}

// ApprovalStatusOf is the status-only form of EvaluateApproval.
func ApprovalStatusOf(events []models.ApprovalEvent, required []string) models.ApprovalStatus {
	return EvaluateApproval(events, required).Status
}

// EvaluateApproval computes an item's status from its ledger and the approvers
// currently required. Only votes after the latest edited/reopen event count. The
// result depends on nothing but the two arguments.
func EvaluateApproval(events []models.ApprovalEvent, required []string) models.ApprovalTally {
	ordered := SortApprovalEvents(events)
	e := newEpochTally(required)
	for i := range ordered {
		e.apply(&ordered[i])
	}
	return e.tally()
}

// epochTally folds events one at a time.
type epochTally struct {
	required    []string
	requiredSet map[string]struct{}
	latest      map[string]models.ApprovalAction
	voters      []string
	seen        bool
	epochStart  *string
}

func newEpochTally(required []string) *epochTally {
	set := make(map[string]struct{}, len(required))
	unique := make([]string, 0, len(required))
	for _, id := range required {
		if id == "" {
			continue
		}
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return &epochTally{
		required:    unique,
		requiredSet: set,
		latest:      make(map[string]models.ApprovalAction),
	}
}

func (e *epochTally) apply(event *models.ApprovalEvent) {
	if !event.Action.Valid() {
		return
	}
	e.seen = true
	switch {
	case event.Action.StartsEpoch():
		e.latest = make(map[string]models.ApprovalAction)
		e.voters = e.voters[:0]
		id := event.ID
		e.epochStart = &id
	case event.Action.IsVote():
		if _, voted := e.latest[event.TeacherID]; !voted {
			e.voters = append(e.voters, event.TeacherID)
		}
		e.latest[event.TeacherID] = event.Action
	}
}

// binding reports whether a teacher's vote affects the outcome. Without any
// staffing every vote binds.
func (e *epochTally) binding(teacherID string) bool {
	if len(e.requiredSet) == 0 {
		return true
	}
	_, ok := e.requiredSet[teacherID]
	return ok
}

func (e *epochTally) status() models.ApprovalStatus {
	if !e.seen {
		return models.ApprovalStatusDraft
	}
	approvals := 0
	for teacherID, action := range e.latest {
		if !e.binding(teacherID) {
			continue
		}
		switch action {
		case models.ApprovalActionRejected:
			return models.ApprovalStatusRejected
		case models.ApprovalActionApproved:
			approvals++
		}
	}
	if len(e.required) == 0 {
		if approvals > 0 {
			return models.ApprovalStatusApproved
		}
		return models.ApprovalStatusPending
	}
	for _, id := range e.required {
		if e.latest[id] != models.ApprovalActionApproved {
			return models.ApprovalStatusPending
		}
	}
	return models.ApprovalStatusApproved
}

func (e *epochTally) tally() models.ApprovalTally {
	t := models.ApprovalTally{
		Status:      e.status(),
		Approved:    []string{},
		Rejected:    []string{},
		Outstanding: []string{},
		EpochStart:  e.epochStart,
	}
	for _, teacherID := range e.voters {
		if !e.binding(teacherID) {
			t.NonBinding = append(t.NonBinding, teacherID)
			continue
		}
		switch e.latest[teacherID] {
		case models.ApprovalActionApproved:
			t.Approved = append(t.Approved, teacherID)
		case models.ApprovalActionRejected:
			t.Rejected = append(t.Rejected, teacherID)
		}
	}
	for _, id := range e.required {
		if e.latest[id] != models.ApprovalActionApproved {
			t.Outstanding = append(t.Outstanding, id)
		}
	}
	sort.Strings(t.Approved)
	sort.Strings(t.Rejected)
	sort.Strings(t.NonBinding)
	return t
}

// DescriptionRevisions rebuilds every version of an item's text, oldest first, from
// the current description and the previous_description recorded on each edit.
func DescriptionRevisions(current string, events []models.ApprovalEvent) []models.DescriptionRevision {
	ordered := SortApprovalEvents(events)
	edits := make([]models.ApprovalEvent, 0)
	for _, event := range ordered {
		if event.Action == models.ApprovalActionEdited && event.PreviousDescription != nil {
			edits = append(edits, event)
		}
	}
	revisions := make([]models.DescriptionRevision, len(edits)+1)
	if len(edits) == 0 {
		revisions[0] = models.DescriptionRevision{Version: 1, Description: current}
		return revisions
	}
	revisions[0] = models.DescriptionRevision{Version: 1, Description: *edits[0].PreviousDescription}
	for i, edit := range edits {
		text := current
		if i+1 < len(edits) {
			text = *edits[i+1].PreviousDescription
		}
		eventID := edit.ID
		editedBy := edit.TeacherID
		editedAt := edit.CreatedAt
		revisions[i+1] = models.DescriptionRevision{
			Version:     i + 2,
			Description: text,
			EventID:     &eventID,
			EditedBy:    &editedBy,
			EditedAt:    &editedAt,
		}
	}
	return revisions
}
