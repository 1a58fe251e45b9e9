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

// CourseRepository handles persistence for [models.Course].
type CourseRepository struct {
	q DBTX
	d shared.Dialect
}

// NewCourseRepository creates a new CourseRepository over q
func NewCourseRepository(q DBTX, d shared.Dialect) *CourseRepository {
	return &CourseRepository{q: q, d: d}
}

// Create inserts a new course, generating its ID when empty
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	course.Stamp(time.Now())
	if course.CreatorID == "" {
		course.CreatorID = course.OwnerID
	}

	if err := course.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO courses (id, title, owner_id, creator_id, modifier_id, collaborator, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, r.d.Rebind(query),
		course.ID,
		course.Title,
		course.OwnerID,
		course.CreatorID,
		course.ModifierID,
		course.Collaborator,
		course.IsDeleted,
		course.CreatedAt,
		course.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}

	return nil
}

// Find retrieves a course by ID. Soft-deleted courses are returned with IsDeleted set.
func (r *CourseRepository) Find(ctx context.Context, id string) (*models.Course, error) {
	query := `
		SELECT id, title, owner_id, creator_id, modifier_id, collaborator, is_deleted, created_at, updated_at
		FROM courses
		WHERE id = ?
	`

	var c models.Course
	err := r.q.QueryRowContext(ctx, r.d.Rebind(query), id).Scan(
		&c.ID, &c.Title, &c.OwnerID, &c.CreatorID, &c.ModifierID,
		&c.Collaborator, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: course %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan course: %w", err)
	}

	return &c, nil
}

// Touch bumps a live course's updated_at
func (r *CourseRepository) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		r.d.Rebind(`UPDATE courses SET updated_at = ? WHERE id = ? AND is_deleted = FALSE`),
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch course: %w", err)
	}

	_, err = rowsOrNotFound(result, "course", id)
	return err
}

// Delete soft-deletes a course by ID
func (r *CourseRepository) Delete(ctx context.Context, id, modifier string) error {
	result, err := r.q.ExecContext(ctx,
		r.d.Rebind(`UPDATE courses SET is_deleted = TRUE, modifier_id = ?, updated_at = ? WHERE id = ? AND is_deleted = FALSE`),
		modifier, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}

	_, err = rowsOrNotFound(result, "course", id)
	return err
}
