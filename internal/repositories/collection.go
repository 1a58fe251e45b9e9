package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/shared"
)

// CollectionRepository handles persistence for [models.Collection], the ordered children of a lesson.
type CollectionRepository struct {
	q DBTX
	d shared.Dialect
}

// NewCollectionRepository creates a new CollectionRepository over q
func NewCollectionRepository(q DBTX, d shared.Dialect) *CollectionRepository {
	return &CollectionRepository{q: q, d: d}
}

const collectionColumns = `id, course_id, unit_id, lesson_id, title, format, owner_id, modifier_id, collaborator, sequence_id, is_deleted, created_at, updated_at`

// Create inserts a new collection, generating its ID when empty
func (r *CollectionRepository) Create(ctx context.Context, c *models.Collection) error {
	c.Stamp(time.Now())
	if c.Format == "" {
		c.Format = models.FormatCollection
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO collections (` + collectionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, r.d.Rebind(query),
		c.ID,
		nullable(c.CourseID),
		nullable(c.UnitID),
		nullable(c.LessonID),
		c.Title,
		c.Format,
		c.OwnerID,
		c.ModifierID,
		c.Collaborator,
		c.SequenceID,
		c.IsDeleted,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}

	return nil
}

// Find retrieves a collection by ID, including soft-deleted collections
func (r *CollectionRepository) Find(ctx context.Context, id string) (*models.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE id = ?`

	c, err := scanCollection(r.q.QueryRowContext(ctx, r.d.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: collection %s", shared.ErrNotFound, id)
	}
	return c, err
}

// List returns the live collections of a lesson in sequence order
func (r *CollectionRepository) List(ctx context.Context, lessonID string) ([]*models.Collection, error) {
	query := `SELECT ` + collectionColumns + `
		FROM collections
		WHERE lesson_id = ? AND is_deleted = FALSE
		ORDER BY sequence_id ASC, id ASC`

	rows, err := r.q.QueryContext(ctx, r.d.Rebind(query), lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var collections []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return collections, nil
}

// ChildIDs returns the live collection ids under (lesson, unit, course), keyed by their lower-cased form.
func (r *CollectionRepository) ChildIDs(ctx context.Context, lessonID, unitID, courseID string) (map[string]string, error) {
	query := `
		SELECT id FROM collections
		WHERE lesson_id = ? AND unit_id = ? AND course_id = ? AND is_deleted = FALSE
	`

	rows, err := r.q.QueryContext(ctx, r.d.Rebind(query), lessonID, unitID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query child ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]string)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan child id: %w", err)
		}
		ids[strings.ToLower(id)] = id
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ids, nil
}

// Resequence writes every (id, sequence_id) pair as one prepared batch scoped to the lesson.
//
// Each statement must touch exactly one row. The first one that does not aborts the batch with
// [shared.ErrStaleItem]; callers run it inside a transaction so nothing partial survives.
func (r *CollectionRepository) Resequence(ctx context.Context, items []models.Position, modifier string, at models.Location, now time.Time) error {
	query := `
		UPDATE collections SET sequence_id = ?, modifier_id = ?, updated_at = ?
		WHERE id = ? AND lesson_id = ? AND unit_id = ? AND course_id = ? AND is_deleted = FALSE
	`

	stmt, err := r.q.PrepareContext(ctx, r.d.Rebind(query))
	if err != nil {
		return fmt.Errorf("failed to prepare resequence: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		result, err := stmt.ExecContext(ctx, item.SequenceID, modifier, now, item.ID, at.LessonID, at.UnitID, at.CourseID)
		if err != nil {
			return fmt.Errorf("failed to resequence collection %s: %w", item.ID, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows != 1 {
			return fmt.Errorf("%w: collection %s updated %d rows", shared.ErrStaleItem, item.ID, rows)
		}
	}

	return nil
}

// Relocate moves every collection of a lesson to a new parent chain and owner, clearing collaborators.
func (r *CollectionRepository) Relocate(ctx context.Context, lessonID string, to models.Location, owner, modifier string, at time.Time) (int64, error) {
	return update(ctx, r.q, r.d, models.KindCollection.Table(),
		"course_id = ?, unit_id = ?, owner_id = ?, modifier_id = ?, collaborator = NULL, updated_at = ?",
		"lesson_id = ?",
		to.CourseID, to.UnitID, owner, modifier, at, lessonID,
	)
}

// DeleteByLesson soft-deletes the live collections of a lesson
func (r *CollectionRepository) DeleteByLesson(ctx context.Context, lessonID, modifier string, at time.Time) (int64, error) {
	return update(ctx, r.q, r.d, models.KindCollection.Table(),
		"is_deleted = TRUE, modifier_id = ?, updated_at = ?",
		"lesson_id = ? AND is_deleted = FALSE",
		modifier, at, lessonID,
	)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(s scanner) (*models.Collection, error) {
	var (
		c                          models.Collection
		courseID, unitID, lessonID sql.NullString
		sequence                   sql.NullInt64
	)

	err := s.Scan(
		&c.ID, &courseID, &unitID, &lessonID, &c.Title, &c.Format, &c.OwnerID, &c.ModifierID,
		&c.Collaborator, &sequence, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection: %w", err)
	}

	c.CourseID, c.UnitID, c.LessonID = courseID.String, unitID.String, lessonID.String
	c.SequenceID = int(sequence.Int64)
	return &c, nil
}

// nullable maps an empty identifier to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
