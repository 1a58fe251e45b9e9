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

// LessonRepository handles persistence for [models.Lesson].
type LessonRepository struct {
	q DBTX
	d shared.Dialect
}

// NewLessonRepository creates a new LessonRepository over q
func NewLessonRepository(q DBTX, d shared.Dialect) *LessonRepository {
	return &LessonRepository{q: q, d: d}
}

// Create inserts a new lesson, generating its ID when empty
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	lesson.Stamp(time.Now())
	if err := lesson.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO lessons (id, course_id, unit_id, title, owner_id, modifier_id, sequence_id, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, r.d.Rebind(query),
		lesson.ID,
		lesson.CourseID,
		lesson.UnitID,
		lesson.Title,
		lesson.OwnerID,
		lesson.ModifierID,
		lesson.SequenceID,
		lesson.IsDeleted,
		lesson.CreatedAt,
		lesson.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lesson: %w", err)
	}

	return nil
}

// Find retrieves a lesson by ID, including soft-deleted lessons
func (r *LessonRepository) Find(ctx context.Context, id string) (*models.Lesson, error) {
	query := `
		SELECT id, course_id, unit_id, title, owner_id, modifier_id, sequence_id, is_deleted, created_at, updated_at
		FROM lessons
		WHERE id = ?
	`

	var l models.Lesson
	err := r.q.QueryRowContext(ctx, r.d.Rebind(query), id).Scan(
		&l.ID, &l.CourseID, &l.UnitID, &l.Title, &l.OwnerID, &l.ModifierID,
		&l.SequenceID, &l.IsDeleted, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lesson %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lesson: %w", err)
	}

	return &l, nil
}

// Lock takes the per-lesson exclusive lock for the rest of the enclosing transaction.
//
// Postgres uses SELECT ... FOR UPDATE. SQLite has no row locks, so a no-op write acquires the
// database write lock instead. Call it only on a transaction-bound repository.
func (r *LessonRepository) Lock(ctx context.Context, id string) error {
	if r.d.SupportsRowLocks() {
		var locked string
		err := r.q.QueryRowContext(ctx, r.d.Rebind(`SELECT id FROM lessons WHERE id = ? FOR UPDATE`), id).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: lesson %s", shared.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock lesson: %w", err)
		}
		return nil
	}

	result, err := r.q.ExecContext(ctx, r.d.Rebind(`UPDATE lessons SET modifier_id = modifier_id WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to lock lesson: %w", err)
	}
	_, err = rowsOrNotFound(result, "lesson", id)
	return err
}

// Relocate moves a live lesson from its current (unit, course) pair to a new one and hands it to owner.
//
// The update only matches while the lesson still sits at from, so a lesson moved or deleted since it
// was read is reported as ErrNotFound.
func (r *LessonRepository) Relocate(ctx context.Context, id string, from, to models.Location, owner, modifier string, at time.Time) error {
	rows, err := update(ctx, r.q, r.d, models.KindLesson.Table(),
		"course_id = ?, unit_id = ?, owner_id = ?, modifier_id = ?, updated_at = ?",
		"id = ? AND course_id = ? AND unit_id = ? AND is_deleted = FALSE",
		to.CourseID, to.UnitID, owner, modifier, at, id, from.CourseID, from.UnitID,
	)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: lesson %s not found under unit %s or already deleted", shared.ErrNotFound, id, from.UnitID)
	}
	return nil
}

// Delete soft-deletes a live lesson that still sits at from
func (r *LessonRepository) Delete(ctx context.Context, id string, from models.Location, modifier string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		r.d.Rebind(`UPDATE lessons SET is_deleted = TRUE, modifier_id = ?, updated_at = ?
			WHERE id = ? AND course_id = ? AND unit_id = ? AND is_deleted = FALSE`),
		modifier, at, id, from.CourseID, from.UnitID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}

	_, err = rowsOrNotFound(result, "lesson", id)
	return err
}
