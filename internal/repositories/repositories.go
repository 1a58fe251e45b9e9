// package repositories provides persistence layer implementations for the hierarchy tables.
//
// Every repository runs against a [DBTX], so the same code serves a pooled *sql.DB
// and an open *sql.Tx.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/shared"
)

// DBTX is the query surface shared by [sql.DB] and [sql.Tx].
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var tables = map[string]bool{
	models.KindCourse.Table():     true,
	models.KindUnit.Table():       true,
	models.KindLesson.Table():     true,
	models.KindCollection.Table(): true,
	models.KindContent.Table():    true,
}

// Gateway bundles the per-table repositories behind one handle.
//
// A Gateway built by [NewGateway] runs each statement on the pool; one returned from [Gateway.TX]
// runs everything inside the given transaction.
type Gateway struct {
	db      *sql.DB
	q       DBTX
	dialect shared.Dialect

	Courses     *CourseRepository
	Units       *UnitRepository
	Lessons     *LessonRepository
	Collections *CollectionRepository
	Contents    *ContentRepository
}

// NewGateway creates a new Gateway over db using dialect-specific SQL.
func NewGateway(db *sql.DB, dialect shared.Dialect) *Gateway {
	g := bind(db, dialect)
	g.db = db
	return g
}

func bind(q DBTX, dialect shared.Dialect) *Gateway {
	return &Gateway{
		q:           q,
		dialect:     dialect,
		Courses:     NewCourseRepository(q, dialect),
		Units:       NewUnitRepository(q, dialect),
		Lessons:     NewLessonRepository(q, dialect),
		Collections: NewCollectionRepository(q, dialect),
		Contents:    NewContentRepository(q, dialect),
	}
}

// TX returns a copy of the gateway whose repositories all run inside tx.
func (g *Gateway) TX(tx *sql.Tx) *Gateway {
	return bind(tx, g.dialect)
}

// Dialect returns the SQL dialect the gateway was built for.
func (g *Gateway) Dialect() shared.Dialect { return g.dialect }

// InTx runs fn inside a single transaction and commits when fn returns nil.
//
// Any error from fn, or a panic, rolls the transaction back. A gateway that is already bound
// to a transaction runs fn directly.
func (g *Gateway) InTx(ctx context.Context, fn func(tx *Gateway) error) error {
	if g.db == nil {
		return fn(g)
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(g.TX(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update runs "UPDATE table SET set WHERE where" with the given parameters and returns the affected row count.
//
// Only the hierarchy tables are accepted. Clauses use "?" placeholders regardless of driver.
func (g *Gateway) Update(ctx context.Context, table, set, where string, params ...any) (int64, error) {
	return update(ctx, g.q, g.dialect, table, set, where, params...)
}

func update(ctx context.Context, q DBTX, d shared.Dialect, table, set, where string, params ...any) (int64, error) {
	if !tables[table] {
		return 0, fmt.Errorf("%w: %q", shared.ErrUnknownTable, table)
	}
	if strings.TrimSpace(set) == "" || strings.TrimSpace(where) == "" {
		return 0, fmt.Errorf("%w: update needs both a set and a where clause", shared.ErrInvalidArgument)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, set, where)
	result, err := q.ExecContext(ctx, d.Rebind(query), params...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

// Find loads any hierarchy row by kind, deleted or not.
func (g *Gateway) Find(ctx context.Context, kind models.Kind, id string) (models.Entity, error) {
	switch kind {
	case models.KindCourse:
		return g.Courses.Find(ctx, id)
	case models.KindUnit:
		return g.Units.Find(ctx, id)
	case models.KindLesson:
		return g.Lessons.Find(ctx, id)
	case models.KindCollection:
		return g.Collections.Find(ctx, id)
	case models.KindContent:
		return g.Contents.Find(ctx, id)
	}
	return nil, fmt.Errorf("%w: %q", shared.ErrUnknownTable, kind)
}

// FindNonDeleted loads a row and fails with [shared.ErrDeleted] when it has been soft-deleted.
func (g *Gateway) FindNonDeleted(ctx context.Context, kind models.Kind, id string) (models.Entity, error) {
	return g.Resolve(ctx, kind, id, models.Location{})
}

// Resolve loads a live row of the given kind and checks that it sits under the expected parents.
//
// It fails with [shared.ErrNotFound] when the row does not exist, [shared.ErrDeleted] when it is
// soft-deleted and [shared.ErrParentMismatch] when a parent in want differs from the stored one.
func (g *Gateway) Resolve(ctx context.Context, kind models.Kind, id string, want models.Location) (models.Entity, error) {
	e, err := g.Find(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := checkLive(kind, id, e, want); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCourse returns the live course with the given id.
func (g *Gateway) ResolveCourse(ctx context.Context, id string) (*models.Course, error) {
	return resolve(ctx, models.KindCourse, id, models.Location{}, g.Courses.Find)
}

// ResolveUnit returns the live unit with the given id under courseID.
func (g *Gateway) ResolveUnit(ctx context.Context, id, courseID string) (*models.Unit, error) {
	return resolve(ctx, models.KindUnit, id, models.Location{CourseID: courseID}, g.Units.Find)
}

// ResolveLesson returns the live lesson with the given id under (unitID, courseID).
func (g *Gateway) ResolveLesson(ctx context.Context, id, unitID, courseID string) (*models.Lesson, error) {
	return resolve(ctx, models.KindLesson, id, models.Location{CourseID: courseID, UnitID: unitID}, g.Lessons.Find)
}

func resolve[T models.Entity](ctx context.Context, kind models.Kind, id string, want models.Location, find func(context.Context, string) (T, error)) (T, error) {
	var zero T
	e, err := find(ctx, id)
	if err != nil {
		return zero, err
	}
	if err := checkLive(kind, id, e, want); err != nil {
		return zero, err
	}
	return e, nil
}

func checkLive(kind models.Kind, id string, e models.Entity, want models.Location) error {
	if e.Deleted() {
		return fmt.Errorf("%w: %s %s", shared.ErrDeleted, kind, id)
	}

	parent, ok := e.Location().Mismatch(want)
	if !ok {
		return nil
	}

	expected := want.CourseID
	switch parent {
	case models.KindUnit:
		expected = want.UnitID
	case models.KindLesson:
		expected = want.LessonID
	}
	return fmt.Errorf("%w: %s %s is not associated with %s %s", shared.ErrParentMismatch, kind, id, parent, expected)
}

// rowsOrNotFound turns an exec result into [shared.ErrNotFound] when nothing matched.
func rowsOrNotFound(result sql.Result, what, id string) (int64, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("%w: %s %s not found or already deleted", shared.ErrNotFound, what, id)
	}
	return rows, nil
}
