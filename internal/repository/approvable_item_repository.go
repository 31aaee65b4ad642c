package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/pkg/database"
)

const approvableItemColumns = `id, kind, description, status, order_index, level, parent_id, bncc_code, discipline_id,
       year_level, bimester, ai_explanation, created_by, last_event_id, approved_event_id, created_at, updated_at`

// ApprovableItemRepository persists objectives and rubric levels.
type ApprovableItemRepository struct {
	db *sqlx.DB
}

// NewApprovableItemRepository constructs the repository.
func NewApprovableItemRepository(db *sqlx.DB) *ApprovableItemRepository {
	return &ApprovableItemRepository{db: db}
}

// GetByID fetches an item by identifier.
func (r *ApprovableItemRepository) GetByID(ctx context.Context, id string) (*models.ApprovableItem, error) {
	query := `SELECT ` + approvableItemColumns + ` FROM approvable_items WHERE id = $1`
	var item models.ApprovableItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateMany inserts new draft items atomically.
func (r *ApprovableItemRepository) CreateMany(ctx context.Context, items []*models.ApprovableItem) error {
	if len(items) == 0 {
		return nil
	}
	const query = `INSERT INTO approvable_items
	(id, kind, description, status, order_index, level, parent_id, bncc_code, discipline_id, year_level, bimester,
	 ai_explanation, created_by, last_event_id, approved_event_id, created_at, updated_at)
	VALUES (:id, :kind, :description, :status, :order_index, :level, :parent_id, :bncc_code, :discipline_id, :year_level,
	 :bimester, :ai_explanation, :created_by, :last_event_id, :approved_event_id, :created_at, :updated_at)`
	now := time.Now().UTC()
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, item := range items {
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			if item.Status == "" {
				item.Status = models.ApprovalStatusDraft
			}
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			item.UpdatedAt = item.CreatedAt
			if _, err := tx.NamedExecContext(ctx, query, item); err != nil {
				return fmt.Errorf("create approvable item: %w", err)
			}
		}
		return nil
	})
}

// ListObjectivesBySkill returns the objectives of a skill group in display order.
func (r *ApprovableItemRepository) ListObjectivesBySkill(ctx context.Context, key models.SkillKey) ([]models.ApprovableItem, error) {
	query := `SELECT ` + approvableItemColumns + ` FROM approvable_items
	WHERE kind = $1 AND bncc_code = $2 AND discipline_id = $3 AND year_level = $4 AND bimester = $5
	ORDER BY order_index ASC, created_at ASC`
	var items []models.ApprovableItem
	if err := r.db.SelectContext(ctx, &items, query,
		models.ItemKindObjective, key.BnccCode, key.DisciplineID, key.YearLevel, key.Bimester); err != nil {
		return nil, fmt.Errorf("list objectives by skill: %w", err)
	}
	return items, nil
}

// ListByParents returns rubric levels of the given objectives ordered by level.
func (r *ApprovableItemRepository) ListByParents(ctx context.Context, parentIDs []string) ([]models.ApprovableItem, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+approvableItemColumns+` FROM approvable_items
	WHERE kind = ? AND parent_id IN (?) ORDER BY parent_id ASC, level ASC`, models.ItemKindRubricLevel, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("build rubric levels query: %w", err)
	}
	var items []models.ApprovableItem
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list rubric levels: %w", err)
	}
	return items, nil
}

// CountObjectivesForSkill counts objectives generated for a skill in a discipline across all years.
func (r *ApprovableItemRepository) CountObjectivesForSkill(ctx context.Context, bnccCode string, disciplineID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM approvable_items WHERE kind = $1 AND bncc_code = $2 AND discipline_id = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, models.ItemKindObjective, bnccCode, disciplineID); err != nil {
		return 0, fmt.Errorf("count objectives for skill: %w", err)
	}
	return count, nil
}
