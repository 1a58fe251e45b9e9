// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
)

// SQLite is the dialect used by every in-memory test database.
var SQLite = shared.Dialect{Driver: shared.DriverSQLite}

// NewTestDB creates an in-memory SQLite database with migrations applied.
//
// The pool holds a single connection, so never query the *sql.DB while a transaction is open.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(shared.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db, SQLite); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// QuietLogger discards everything.
func QuietLogger() *log.Logger {
	return log.New(io.Discard)
}

// Tree is one seeded course with a single unit and lesson.
type Tree struct {
	Course      *models.Course
	Unit        *models.Unit
	Lesson      *models.Lesson
	Collections []*models.Collection
	Contents    []*models.Content
}

// Seeder creates hierarchy rows for tests.
type Seeder struct {
	t *testing.T
	g *repositories.Gateway
}

func NewSeeder(t *testing.T, g *repositories.Gateway) *Seeder {
	return &Seeder{t: t, g: g}
}

// Course creates a live course owned by owner.
func (s *Seeder) Course(owner string, collaborators ...string) *models.Course {
	s.t.Helper()
	c := &models.Course{
		Record:       models.Record{OwnerID: owner},
		Title:        "Course",
		Collaborator: models.Collaborators(collaborators),
	}
	if err := s.g.Courses.Create(context.Background(), c); err != nil {
		s.t.Fatalf("failed to seed course: %v", err)
	}
	return c
}

// Unit creates a live unit under course.
func (s *Seeder) Unit(course *models.Course, seq int) *models.Unit {
	s.t.Helper()
	u := &models.Unit{
		Record:     models.Record{OwnerID: course.OwnerID},
		CourseID:   course.ID,
		Title:      fmt.Sprintf("Unit %d", seq),
		SequenceID: seq,
	}
	if err := s.g.Units.Create(context.Background(), u); err != nil {
		s.t.Fatalf("failed to seed unit: %v", err)
	}
	return u
}

// Lesson creates a live lesson under unit.
func (s *Seeder) Lesson(unit *models.Unit, owner string, seq int) *models.Lesson {
	s.t.Helper()
	l := &models.Lesson{
		Record:     models.Record{OwnerID: owner},
		CourseID:   unit.CourseID,
		UnitID:     unit.ID,
		Title:      fmt.Sprintf("Lesson %d", seq),
		SequenceID: seq,
	}
	if err := s.g.Lessons.Create(context.Background(), l); err != nil {
		s.t.Fatalf("failed to seed lesson: %v", err)
	}
	return l
}

// Collection creates a live collection under lesson. Collaborators are set so moves can clear them.
func (s *Seeder) Collection(lesson *models.Lesson, format string, seq int) *models.Collection {
	s.t.Helper()
	c := &models.Collection{
		Record:       models.Record{OwnerID: lesson.OwnerID},
		CourseID:     lesson.CourseID,
		UnitID:       lesson.UnitID,
		LessonID:     lesson.ID,
		Title:        fmt.Sprintf("%s %d", format, seq),
		Format:       format,
		Collaborator: models.Collaborators{"collab-" + lesson.OwnerID},
		SequenceID:   seq,
	}
	if err := s.g.Collections.Create(context.Background(), c); err != nil {
		s.t.Fatalf("failed to seed collection: %v", err)
	}
	return c
}

// Content creates a live content row inside collection.
func (s *Seeder) Content(collection *models.Collection, seq int) *models.Content {
	s.t.Helper()
	c := &models.Content{
		Record:       models.Record{OwnerID: collection.OwnerID},
		CourseID:     collection.CourseID,
		UnitID:       collection.UnitID,
		LessonID:     collection.LessonID,
		CollectionID: collection.ID,
		Title:        fmt.Sprintf("Content %d", seq),
		SequenceID:   seq,
	}
	if err := s.g.Contents.Create(context.Background(), c); err != nil {
		s.t.Fatalf("failed to seed content: %v", err)
	}
	return c
}

// Tree creates a course owned by owner with one unit, one lesson and n collections at 1..n,
// each holding a single content row.
func (s *Seeder) Tree(owner string, n int, collaborators ...string) Tree {
	s.t.Helper()

	var tr Tree
	tr.Course = s.Course(owner, collaborators...)
	tr.Unit = s.Unit(tr.Course, 1)
	tr.Lesson = s.Lesson(tr.Unit, owner, 1)
	for i := 1; i <= n; i++ {
		format := models.FormatCollection
		if i%2 == 0 {
			format = models.FormatAssessment
		}
		c := s.Collection(tr.Lesson, format, i)
		tr.Collections = append(tr.Collections, c)
		tr.Contents = append(tr.Contents, s.Content(c, 1))
	}
	return tr
}

// InjectFault installs a trigger that aborts any update of column on table.
//
// With id set, only the update of that row fails, after the rows before it were written.
func InjectFault(t *testing.T, db *sql.DB, table, column, id string) {
	t.Helper()

	name := fmt.Sprintf("fault_%s_%s", table, column)
	when := ""
	if id != "" {
		when = fmt.Sprintf("WHEN OLD.id = '%s'", id)
	}

	trigger := fmt.Sprintf(`CREATE TRIGGER %s BEFORE UPDATE OF %s ON %s %s
		BEGIN SELECT RAISE(ABORT, 'injected fault'); END;`, name, column, table, when)
	if _, err := db.Exec(trigger); err != nil {
		t.Fatalf("failed to install fault trigger: %v", err)
	}
}

// Snapshot returns "column=value" rows of a table ordered by id, for before/after comparisons.
func Snapshot(t *testing.T, db *sql.DB, table string, columns ...string) []string {
	t.Helper()

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(columns, ", "), table)
	rows, err := db.Query(query)
	if err != nil {
		t.Fatalf("failed to snapshot %s: %v", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		vals := make([]sql.NullString, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			t.Fatalf("failed to scan %s: %v", table, err)
		}

		parts := make([]string, len(columns))
		for i, c := range columns {
			parts[i] = c + "=" + vals[i].String
		}
		out = append(out, strings.Join(parts, " "))
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("failed to iterate %s: %v", table, err)
	}
	return out
}

// FakeCache is an in-memory stand-in for the Redis course cache.
type FakeCache struct {
	mu          sync.Mutex
	outlines    map[string]*models.CourseOutline
	generations map[string]int64
	Invalidated []string
	Hits        int
	Stale       int // Set calls dropped because the course was invalidated after Generation
}

func NewFakeCache() *FakeCache {
	return &FakeCache{
		outlines:    make(map[string]*models.CourseOutline),
		generations: make(map[string]int64),
	}
}

func (c *FakeCache) Get(_ context.Context, courseID string) (*models.CourseOutline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outlines[strings.ToLower(courseID)]
	if ok {
		c.Hits++
	}
	return o, ok
}

func (c *FakeCache) Generation(_ context.Context, courseID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[strings.ToLower(courseID)], true
}

func (c *FakeCache) Set(_ context.Context, outline *models.CourseOutline, gen int64) {
	if outline == nil || outline.Course == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(outline.Course.ID)
	if c.generations[key] != gen {
		c.Stale++
		return
	}
	c.outlines[key] = outline
}

func (c *FakeCache) Invalidate(_ context.Context, courseIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range courseIDs {
		key := strings.ToLower(id)
		delete(c.outlines, key)
		c.generations[key]++
		c.Invalidated = append(c.Invalidated, id)
	}
}

// Len returns the number of cached outlines.
func (c *FakeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outlines)
}

// RecordingNotifier keeps every event it receives. Err, when set, is returned from Notify.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []pipeline.Event
	Err    error
}

func (n *RecordingNotifier) Notify(_ context.Context, ev pipeline.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.Err
}

// Events returns a copy of the received events.
func (n *RecordingNotifier) Events() []pipeline.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pipeline.Event(nil), n.events...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
