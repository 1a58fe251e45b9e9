package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/shared"
)

// UnitRepository handles persistence for [models.Unit].
type UnitRepository struct {
	q DBTX
	d shared.Dialect
}

// NewUnitRepository creates a new UnitRepository over q
func NewUnitRepository(q DBTX, d shared.Dialect) *UnitRepository {
	return &UnitRepository{q: q, d: d}
}

// Create inserts a new unit, generating its ID when empty
func (r *UnitRepository) Create(ctx context.Context, unit *models.Unit) error {
	unit.Stamp(time.Now())
	if err := unit.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO units (id, course_id, title, owner_id, modifier_id, sequence_id, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, r.d.Rebind(query),
		unit.ID,
		unit.CourseID,
		unit.Title,
		unit.OwnerID,
		unit.ModifierID,
		unit.SequenceID,
		unit.IsDeleted,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert unit: %w", err)
	}

	return nil
}

// Find retrieves a unit by ID, including soft-deleted units
func (r *UnitRepository) Find(ctx context.Context, id string) (*models.Unit, error) {
	query := `
		SELECT id, course_id, title, owner_id, modifier_id, sequence_id, is_deleted, created_at, updated_at
		FROM units
		WHERE id = ?
	`

	var u models.Unit
	err := r.q.QueryRowContext(ctx, r.d.Rebind(query), id).Scan(
		&u.ID, &u.CourseID, &u.Title, &u.OwnerID, &u.ModifierID,
		&u.SequenceID, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: unit %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan unit: %w", err)
	}

	return &u, nil
}

// Summaries lists the live units of a course in sequence order with their live lesson counts
func (r *UnitRepository) Summaries(ctx context.Context, courseID string) ([]models.UnitSummary, error) {
	query := `
		SELECT u.id, u.title, u.sequence_id, COUNT(l.id)
		FROM units u
		LEFT JOIN lessons l ON l.unit_id = u.id AND l.course_id = u.course_id AND l.is_deleted = FALSE
		WHERE u.course_id = ? AND u.is_deleted = FALSE
		GROUP BY u.id, u.title, u.sequence_id
		ORDER BY u.sequence_id ASC, u.id ASC
	`

	rows, err := r.q.QueryContext(ctx, r.d.Rebind(query), courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	summaries := []models.UnitSummary{}
	for rows.Next() {
		var s models.UnitSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.SequenceID, &s.LessonCount); err != nil {
			return nil, fmt.Errorf("failed to scan unit summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return summaries, nil
}
