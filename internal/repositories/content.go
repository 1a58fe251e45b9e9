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

// ContentRepository handles persistence for [models.Content].
type ContentRepository struct {
	q DBTX
	d shared.Dialect
}

// NewContentRepository creates a new ContentRepository over q
func NewContentRepository(q DBTX, d shared.Dialect) *ContentRepository {
	return &ContentRepository{q: q, d: d}
}

const contentColumns = `id, course_id, unit_id, lesson_id, collection_id, title, owner_id, modifier_id, sequence_id, is_deleted, created_at, updated_at`

// Create inserts a new content row, generating its ID when empty
func (r *ContentRepository) Create(ctx context.Context, c *models.Content) error {
	c.Stamp(time.Now())
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO contents (` + contentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, r.d.Rebind(query),
		c.ID,
		nullable(c.CourseID),
		nullable(c.UnitID),
		nullable(c.LessonID),
		nullable(c.CollectionID),
		c.Title,
		c.OwnerID,
		c.ModifierID,
		c.SequenceID,
		c.IsDeleted,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert content: %w", err)
	}

	return nil
}

// Find retrieves a content row by ID, including soft-deleted rows
func (r *ContentRepository) Find(ctx context.Context, id string) (*models.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE id = ?`

	var (
		c                                        models.Content
		courseID, unitID, lessonID, collectionID sql.NullString
		sequence                                 sql.NullInt64
	)

	err := r.q.QueryRowContext(ctx, r.d.Rebind(query), id).Scan(
		&c.ID, &courseID, &unitID, &lessonID, &collectionID, &c.Title, &c.OwnerID, &c.ModifierID,
		&sequence, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: content %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan content: %w", err)
	}

	c.CourseID, c.UnitID, c.LessonID, c.CollectionID = courseID.String, unitID.String, lessonID.String, collectionID.String
	c.SequenceID = int(sequence.Int64)
	return &c, nil
}

// Relocate moves every content row of a lesson to a new parent chain and owner.
func (r *ContentRepository) Relocate(ctx context.Context, lessonID string, to models.Location, owner, modifier string, at time.Time) (int64, error) {
	return update(ctx, r.q, r.d, models.KindContent.Table(),
		"course_id = ?, unit_id = ?, owner_id = ?, modifier_id = ?, updated_at = ?",
		"lesson_id = ?",
		to.CourseID, to.UnitID, owner, modifier, at, lessonID,
	)
}

// DeleteByLesson soft-deletes the live content rows of a lesson
func (r *ContentRepository) DeleteByLesson(ctx context.Context, lessonID, modifier string, at time.Time) (int64, error) {
	return update(ctx, r.q, r.d, models.KindContent.Table(),
		"is_deleted = TRUE, modifier_id = ?, updated_at = ?",
		"lesson_id = ? AND is_deleted = FALSE",
		modifier, at, lessonID,
	)
}
