package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

var approvableItemRowColumns = []string{
	"id", "kind", "description", "status", "order_index", "level", "parent_id", "bncc_code", "discipline_id",
	"year_level", "bimester", "ai_explanation", "created_by", "last_event_id", "approved_event_id", "created_at", "updated_at",
}

func TestApprovableItemRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovableItemRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(approvableItemRowColumns).
		AddRow("obj-1", "objective", "Compare natural numbers", "pending", 1, nil, nil, "EF06MA01", 3, 6, 1, nil, "C1", "evt-1", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvable_items WHERE id = $1")).
		WithArgs("obj-1").
		WillReturnRows(rows)

	item, err := repo.GetByID(context.Background(), "obj-1")
	require.NoError(t, err)
	require.Equal(t, models.ItemKindObjective, item.Kind)
	require.Equal(t, int64(3), item.DisciplineID)
	require.NotNil(t, item.LastEventID)
	require.Equal(t, "evt-1", *item.LastEventID)
	require.Nil(t, item.ApprovedEventID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM approvable_items WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovableItemRepositoryCreateMany(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovableItemRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvable_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvable_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	items := []*models.ApprovableItem{
		{Kind: models.ItemKindObjective, Description: "First", OrderIndex: 1, BnccCode: "EF06MA01", DisciplineID: 3, YearLevel: 6, Bimester: 1},
		{Kind: models.ItemKindObjective, Description: "Second", OrderIndex: 2, BnccCode: "EF06MA01", DisciplineID: 3, YearLevel: 6, Bimester: 1},
	}
	require.NoError(t, repo.CreateMany(context.Background(), items))
	for _, item := range items {
		require.NotEmpty(t, item.ID)
		require.Equal(t, models.ApprovalStatusDraft, item.Status)
		require.False(t, item.CreatedAt.IsZero())
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovableItemRepositoryCreateManyRollsBack(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovableItemRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvable_items")).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.CreateMany(context.Background(), []*models.ApprovableItem{{Kind: models.ItemKindObjective, Description: "x"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovableItemRepositoryListObjectivesBySkill(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovableItemRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(approvableItemRowColumns).
		AddRow("obj-1", "objective", "First", "approved", 1, nil, nil, "EF06MA01", 3, 6, 1, nil, nil, "evt-3", "evt-3", now, now).
		AddRow("obj-2", "objective", "Second", "draft", 2, nil, nil, "EF06MA01", 3, 6, 1, "generated", nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind = $1 AND bncc_code = $2")).
		WithArgs("objective", "EF06MA01", int64(3), 6, 1).
		WillReturnRows(rows)

	items, err := repo.ListObjectivesBySkill(context.Background(), models.SkillKey{BnccCode: "EF06MA01", DisciplineID: 3, YearLevel: 6, Bimester: 1})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[1].AIExplanation)
	require.Nil(t, items[1].LastEventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovableItemRepositoryListByParents(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovableItemRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(approvableItemRowColumns).
		AddRow("lvl-1", "rubric_level", "Beginning", "pending", 1, 1, "obj-1", "EF06MA01", 3, 6, 1, nil, "T2", "evt-9", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("parent_id IN")).
		WithArgs("rubric_level", "obj-1").
		WillReturnRows(rows)

	items, err := repo.ListByParents(context.Background(), []string{"obj-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, *items[0].Level)
	require.Equal(t, "obj-1", *items[0].ParentID)
	require.NoError(t, mock.ExpectationsWereMet())

	none, err := repo.ListByParents(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestApprovableItemRepositoryCountObjectivesForSkill(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovableItemRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM approvable_items")).
		WithArgs("objective", "EF06MA01", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountObjectivesForSkill(context.Background(), "EF06MA01", 3)
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
