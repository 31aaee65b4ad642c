package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/pkg/database"
)

// ErrStaleEventToken signals that another writer appended to the item first.
var ErrStaleEventToken = errors.New("approval event token is stale")

const approvalEventColumns = `id, item_id, sequence, teacher_id, teacher_name, action, previous_description, notes, created_at`

// ApprovalEventRepository is the append-only ledger of approval events.
type ApprovalEventRepository struct {
	db *sqlx.DB
}

// NewApprovalEventRepository constructs the repository.
func NewApprovalEventRepository(db *sqlx.DB) *ApprovalEventRepository {
	return &ApprovalEventRepository{db: db}
}

// AppendEventParams carries the event plus the projection written alongside it.
// ApprovedEventID is written as given; nil clears it.
type AppendEventParams struct {
	Event               *models.ApprovalEvent
	ExpectedLastEventID *string
	Status              models.ApprovalStatus
	Description         *string
	ApprovedEventID     *string
}

// Append stores the event and advances the item's token and cached projection in one
// transaction. It fails with ErrStaleEventToken when the item's last event differs
// from ExpectedLastEventID.
func (r *ApprovalEventRepository) Append(ctx context.Context, params AppendEventParams) error {
	event := params.Event
	if event == nil {
		return fmt.Errorf("append approval event: nil event")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const advance = `UPDATE approvable_items
		SET last_event_id = $1, status = $2, description = COALESCE($3, description), updated_at = $4, approved_event_id = $5
		WHERE id = $6 AND last_event_id IS NOT DISTINCT FROM $7`
		result, err := tx.ExecContext(ctx, advance,
			event.ID, params.Status, params.Description, event.CreatedAt, params.ApprovedEventID, event.ItemID, params.ExpectedLastEventID)
		if err != nil {
			return fmt.Errorf("advance approvable item token: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check approvable item token rows: %w", err)
		}
		if rows == 0 {
			return ErrStaleEventToken
		}

		const insert = `INSERT INTO approval_events
		(id, item_id, teacher_id, teacher_name, action, previous_description, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING sequence`
		if err := tx.GetContext(ctx, &event.Sequence, insert,
			event.ID, event.ItemID, event.TeacherID, event.TeacherName, event.Action,
			event.PreviousDescription, event.Notes, event.CreatedAt); err != nil {
			return fmt.Errorf("insert approval event: %w", err)
		}
		return nil
	})
}

// List returns the ledger of one item in replay order.
func (r *ApprovalEventRepository) List(ctx context.Context, itemID string) ([]models.ApprovalEvent, error) {
	query := `SELECT ` + approvalEventColumns + ` FROM approval_events WHERE item_id = $1 ORDER BY created_at ASC, sequence ASC`
	var events []models.ApprovalEvent
	if err := r.db.SelectContext(ctx, &events, query, itemID); err != nil {
		return nil, fmt.Errorf("list approval events: %w", err)
	}
	return events, nil
}

// ListByItems loads the ledgers of many items keyed by item id.
func (r *ApprovalEventRepository) ListByItems(ctx context.Context, itemIDs []string) (map[string][]models.ApprovalEvent, error) {
	grouped := make(map[string][]models.ApprovalEvent, len(itemIDs))
	if len(itemIDs) == 0 {
		return grouped, nil
	}
	query, args, err := sqlx.In(`SELECT `+approvalEventColumns+` FROM approval_events WHERE item_id IN (?) ORDER BY created_at ASC, sequence ASC`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("build approval events query: %w", err)
	}
	var events []models.ApprovalEvent
	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list approval events by items: %w", err)
	}
	for _, event := range events {
		grouped[event.ItemID] = append(grouped[event.ItemID], event)
	}
	return grouped, nil
}
