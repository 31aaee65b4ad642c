package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

// StaffingRepository reads teacher ↔ class/discipline assignments.
type StaffingRepository struct {
	db *sqlx.DB
}

// NewStaffingRepository constructs the repository.
func NewStaffingRepository(db *sqlx.DB) *StaffingRepository {
	return &StaffingRepository{db: db}
}

// TeachersFor returns the distinct active teachers of a discipline across the classes of a year level.
func (r *StaffingRepository) TeachersFor(ctx context.Context, disciplineID int64, yearLevel int) ([]models.TeacherRef, error) {
	const query = `
SELECT DISTINCT u.id, COALESCE(NULLIF(u.full_name, ''), u.username) AS name, u.role
FROM teacher_class_disciplines tcd
JOIN classes c ON c.id = tcd.class_id
JOIN users u ON u.id = tcd.teacher_id
WHERE tcd.discipline_id = $1 AND c.year_level = $2 AND u.is_active = TRUE
ORDER BY u.id ASC`
	var teachers []models.TeacherRef
	if err := r.db.SelectContext(ctx, &teachers, query, disciplineID, yearLevel); err != nil {
		return nil, fmt.Errorf("list teachers for discipline: %w", err)
	}
	return teachers, nil
}
