package pipeline

import (
	"encoding/json"
	"time"

	"github.com/desertthunder/curricula/internal/access"
)

// Request is the typed request context handed over by the transport.
//
// Path identifiers come from the URL or CLI flags; Payload is the raw JSON body and may be empty.
type Request struct {
	CourseID string
	UnitID   string
	LessonID string
	UserID   string
	Payload  json.RawMessage
}

// Anonymous reports whether the request carries no usable identity.
func (r *Request) Anonymous() bool {
	return access.IsAnonymous(r.UserID)
}

// Status is the result of one phase.
type Status int

const (
	NotStarted Status = iota
	Continue
	Failed
	Successful
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Continue:
		return "continue"
	case Failed:
		return "failed"
	case Successful:
		return "successful"
	default:
		return ""
	}
}

// Phase identifies a pipeline step.
type Phase int

const (
	Sanity Phase = iota
	Validate
	Execute
)

func (p Phase) String() string {
	switch p {
	case Sanity:
		return "sanity"
	case Validate:
		return "validate"
	case Execute:
		return "execute"
	default:
		return ""
	}
}

// Event describes a committed mutation for downstream consumers.
type Event struct {
	Kind     string    `json:"event"`
	LessonID string    `json:"lesson_id,omitempty"`
	CourseID string    `json:"course_id,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	At       time.Time `json:"at"`
}

// PhaseUpdate is emitted on a trace channel after every phase.
type PhaseUpdate struct {
	Operation string
	Phase     Phase
	Status    Status
	Elapsed   time.Duration
}
