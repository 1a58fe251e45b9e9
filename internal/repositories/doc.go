// Package repositories implements SQL persistence for the course hierarchy.
//
// Repositories run on SQLite (mattn/go-sqlite3) or Postgres (pgx stdlib). Queries are written
// with "?" placeholders and rebound for the active [shared.Dialect].
//
// Key Implementations:
//   - [Gateway] : bundles every repository, opens transactions and exposes Resolve
//   - [CourseRepository] : courses, including the updated_at bump
//   - [UnitRepository] : units and the course outline summary
//   - [LessonRepository] : lessons, per-lesson locking and relocation
//   - [CollectionRepository] : ordered lesson children and atomic resequencing
//   - [ContentRepository] : content rows carried along with their lesson
//   - [CourseCache] : Redis read-through cache of course outlines
//
// Rows are never physically deleted. Find returns soft-deleted rows with IsDeleted set;
// the Resolve family rejects them with [shared.ErrDeleted].
package repositories
