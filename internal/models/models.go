// package models defines the data model for the course catalog
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/curricula/internal/shared"
)

// Kind names one level of the Course -> Unit -> Lesson -> Collection -> Content hierarchy.
type Kind string

const (
	KindCourse     Kind = "course"
	KindUnit       Kind = "unit"
	KindLesson     Kind = "lesson"
	KindCollection Kind = "collection"
	KindContent    Kind = "content"
)

// Table returns the table backing the kind.
func (k Kind) Table() string {
	switch k {
	case KindCourse:
		return "courses"
	case KindUnit:
		return "units"
	case KindLesson:
		return "lessons"
	case KindCollection:
		return "collections"
	case KindContent:
		return "contents"
	}
	return ""
}

// Collection formats
const (
	FormatCollection = "collection"
	FormatAssessment = "assessment"
)

// Entity is implemented by every persisted hierarchy row.
type Entity interface {
	Kind() Kind         // Kind reports the hierarchy level
	Location() Location // Location returns the parent chain the row claims
	Deleted() bool      // Deleted reports the soft-delete flag
	Validate() error    // Validate checks required fields before a write
}

// Location is the parent chain of a hierarchy row. Empty fields are unknown or not applicable.
type Location struct {
	CourseID string `json:"course_id,omitempty"`
	UnitID   string `json:"unit_id,omitempty"`
	LessonID string `json:"lesson_id,omitempty"`
}

// Mismatch compares l against the expected parents in want and returns the first parent level that differs.
//
// Fields left empty in want are not checked. Identifiers compare case-insensitively.
func (l Location) Mismatch(want Location) (Kind, bool) {
	switch {
	case want.CourseID != "" && !shared.SameID(l.CourseID, want.CourseID):
		return KindCourse, true
	case want.UnitID != "" && !shared.SameID(l.UnitID, want.UnitID):
		return KindUnit, true
	case want.LessonID != "" && !shared.SameID(l.LessonID, want.LessonID):
		return KindLesson, true
	}
	return "", false
}

// Record holds the columns shared by every hierarchy table.
type Record struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	ModifierID string    `json:"modifier_id"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r Record) Deleted() bool { return r.IsDeleted }

// Stamp fills in a missing id and timestamps ahead of an insert.
func (r *Record) Stamp(now time.Time) {
	if r.ID == "" {
		r.ID = shared.GenerateID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if r.ModifierID == "" {
		r.ModifierID = r.OwnerID
	}
}

func (r Record) validate(kind Kind) error {
	if !shared.ValidID(r.ID) {
		return fmt.Errorf("%w: %s id must be a UUID", shared.ErrInvalidInput, kind)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("%w: %s owner_id is required", shared.ErrInvalidInput, kind)
	}
	return nil
}

// Collaborators is a set of user ids persisted as a JSON array.
type Collaborators []string

// Contains reports whether userID is in the set, ignoring case.
func (c Collaborators) Contains(userID string) bool {
	for _, id := range c {
		if shared.SameID(id, userID) {
			return true
		}
	}
	return false
}

// Value implements [driver.Valuer]. An empty set is stored as NULL.
func (c Collaborators) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements [sql.Scanner].
func (c *Collaborators) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported collaborator column type %T", src)
	}

	if strings.TrimSpace(string(raw)) == "" {
		*c = nil
		return nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("failed to decode collaborators: %w", err)
	}
	*c = ids
	return nil
}

// Course is the root aggregate. Authorization is always evaluated against a Course.
type Course struct {
	Record
	Title        string        `json:"title"`
	CreatorID    string        `json:"creator_id"`
	Collaborator Collaborators `json:"collaborator"`
}

func (c *Course) Kind() Kind { return KindCourse }
func (c *Course) Location() Location { return Location{CourseID: c.ID} }

func (c *Course) Validate() error {
	if err := c.validate(KindCourse); err != nil {
		return err
	}
	if c.CreatorID == "" {
		return fmt.Errorf("%w: course creator_id is required", shared.ErrInvalidInput)
	}
	return nil
}

// Unit groups Lessons under a Course.
type Unit struct {
	Record
	CourseID   string `json:"course_id"`
	Title      string `json:"title"`
	SequenceID int    `json:"sequence_id"`
}

func (u *Unit) Kind() Kind { return KindUnit }
func (u *Unit) Location() Location { return Location{CourseID: u.CourseID} }

func (u *Unit) Validate() error {
	if err := u.validate(KindUnit); err != nil {
		return err
	}
	if u.CourseID == "" {
		return fmt.Errorf("%w: unit course_id is required", shared.ErrInvalidInput)
	}
	return nil
}

// Lesson belongs to exactly one (Unit, Course) pair and owns an ordered list of Collections.
type Lesson struct {
	Record
	CourseID   string `json:"course_id"`
	UnitID     string `json:"unit_id"`
	Title      string `json:"title"`
	SequenceID int    `json:"sequence_id"`
}

func (l *Lesson) Kind() Kind { return KindLesson }
func (l *Lesson) Location() Location { return Location{CourseID: l.CourseID, UnitID: l.UnitID} }

// Scope is the parent chain every child of the lesson must carry.
func (l *Lesson) Scope() Location {
	return Location{CourseID: l.CourseID, UnitID: l.UnitID, LessonID: l.ID}
}

func (l *Lesson) Validate() error {
	if err := l.validate(KindLesson); err != nil {
		return err
	}
	if l.CourseID == "" || l.UnitID == "" {
		return fmt.Errorf("%w: lesson course_id and unit_id are required", shared.ErrInvalidInput)
	}
	return nil
}

// Collection is an ordered child item of a Lesson: a collection or an assessment.
type Collection struct {
	Record
	CourseID     string        `json:"course_id"`
	UnitID       string        `json:"unit_id"`
	LessonID     string        `json:"lesson_id"`
	Title        string        `json:"title"`
	Format       string        `json:"format"`
	Collaborator Collaborators `json:"collaborator,omitempty"`
	SequenceID   int           `json:"sequence_id"`
}

func (c *Collection) Kind() Kind { return KindCollection }

func (c *Collection) Location() Location {
	return Location{CourseID: c.CourseID, UnitID: c.UnitID, LessonID: c.LessonID}
}

func (c *Collection) Validate() error {
	if err := c.validate(KindCollection); err != nil {
		return err
	}
	switch c.Format {
	case FormatCollection, FormatAssessment:
	default:
		return fmt.Errorf("%w: collection format must be %q or %q", shared.ErrInvalidInput, FormatCollection, FormatAssessment)
	}
	if c.SequenceID < 1 {
		return fmt.Errorf("%w: collection sequence_id must be positive", shared.ErrInvalidInput)
	}
	return nil
}

// Content is a resource or question inside a Collection. It carries the Lesson's parent triple.
type Content struct {
	Record
	CourseID     string `json:"course_id"`
	UnitID       string `json:"unit_id"`
	LessonID     string `json:"lesson_id"`
	CollectionID string `json:"collection_id"`
	Title        string `json:"title"`
	SequenceID   int    `json:"sequence_id"`
}

func (c *Content) Kind() Kind { return KindContent }

func (c *Content) Location() Location {
	return Location{CourseID: c.CourseID, UnitID: c.UnitID, LessonID: c.LessonID}
}

func (c *Content) Validate() error {
	if err := c.validate(KindContent); err != nil {
		return err
	}
	if c.CollectionID == "" {
		return fmt.Errorf("%w: content collection_id is required", shared.ErrInvalidInput)
	}
	return nil
}

// Position is one entry of a reorder request.
type Position struct {
	ID         string `json:"id"`
	SequenceID int    `json:"sequence_id"`
}

// UnitSummary is the per-unit line of a course outline.
type UnitSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SequenceID  int    `json:"sequence_id"`
	LessonCount int    `json:"lesson_count"`
}

// CourseOutline is the read model returned when fetching a course.
type CourseOutline struct {
	Course *Course       `json:"course"`
	Units  []UnitSummary `json:"unit_summary"`
}
