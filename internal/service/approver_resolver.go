package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

type staffingLookup interface {
	TeachersFor(ctx context.Context, disciplineID int64, yearLevel int) ([]models.TeacherRef, error)
}

type itemLookup interface {
	GetByID(ctx context.Context, id string) (*models.ApprovableItem, error)
}

// ApproverResolver computes who must approve an item right now. Results are never
// cached because staffing may change while an item is under review.
type ApproverResolver struct {
	staffing staffingLookup
	items    itemLookup
	logger   *zap.Logger
}

// NewApproverResolver constructs the resolver.
func NewApproverResolver(staffing staffingLookup, items itemLookup, logger *zap.Logger) *ApproverResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApproverResolver{staffing: staffing, items: items, logger: logger}
}

// Resolve returns the required approvers of item, sorted by id. Rubric levels use the
// discipline and year level of their parent objective.
func (r *ApproverResolver) Resolve(ctx context.Context, item *models.ApprovableItem) ([]models.TeacherRef, error) {
	if item == nil {
		return nil, appErrors.ErrNotFound
	}
	disciplineID, yearLevel := item.DisciplineID, item.YearLevel
	if item.Kind == models.ItemKindRubricLevel && (disciplineID == 0 || yearLevel == 0) {
		if item.ParentID == nil {
			return nil, appErrors.Clone(appErrors.ErrInternal, "rubric level has no parent objective")
		}
		parent, err := r.items.GetByID(ctx, *item.ParentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "parent objective not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to load parent objective")
		}
		disciplineID, yearLevel = parent.DisciplineID, parent.YearLevel
	}
	teachers, err := r.staffing.TeachersFor(ctx, disciplineID, yearLevel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "failed to resolve required approvers")
	}
	unique := make([]models.TeacherRef, 0, len(teachers))
	seen := make(map[string]struct{}, len(teachers))
	for _, teacher := range teachers {
		if teacher.ID == "" {
			continue
		}
		if _, dup := seen[teacher.ID]; dup {
			continue
		}
		seen[teacher.ID] = struct{}{}
		unique = append(unique, teacher)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].ID < unique[j].ID })
	if len(unique) == 0 {
		r.logger.Debug("no staffing for item, any approval binds",
			zap.String("item_id", item.ID), zap.Int64("discipline_id", disciplineID), zap.Int("year_level", yearLevel))
	}
	return unique, nil
}

// TeacherIDs extracts identifiers from teacher references.
func TeacherIDs(teachers []models.TeacherRef) []string {
	ids := make([]string, len(teachers))
	for i, teacher := range teachers {
		ids[i] = teacher.ID
	}
	return ids
}
