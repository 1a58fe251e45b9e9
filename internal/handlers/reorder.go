package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/desertthunder/curricula/internal/access"
	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
)

const (
	reorderKey    = "order"
	reorderFailed = "Data validation failed. Invalid data in request payload"
)

// position is one entry of a reorder payload after type checks.
type position struct {
	ID         string `json:"id" validate:"required,uuid"`
	SequenceID int    `json:"sequence_id" validate:"gte=1"`
}

type reorderState struct {
	items  []models.Position
	course *models.Course
	lesson *models.Lesson
}

// ReorderLesson rewrites the sequence of every live collection and assessment of a lesson.
//
// The payload must name each current child exactly once with the sequences 1..N.
type ReorderLesson struct {
	env *Env
}

func (h *ReorderLesson) ReadOnly() bool { return false }

func (h *ReorderLesson) CheckSanity(req *pipeline.Request) pipeline.Outcome {
	logger := h.env.Logger
	switch {
	case !shared.ValidID(req.CourseID):
		logger.Warn("invalid course id to reorder lesson contents", "course_id", req.CourseID)
		return pipeline.InvalidRequest("Invalid course id provided to reorder lesson contents")
	case !shared.ValidID(req.UnitID):
		logger.Warn("invalid unit id to reorder lesson contents", "unit_id", req.UnitID)
		return pipeline.InvalidRequest("Invalid unit id provided to reorder lesson contents")
	case !shared.ValidID(req.LessonID):
		logger.Warn("invalid lesson id to reorder lesson contents", "lesson_id", req.LessonID)
		return pipeline.InvalidRequest("Invalid lesson id provided to reorder lesson contents")
	}

	raw := bytes.TrimSpace(req.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}")) {
		logger.Warn("invalid request received to reorder lesson contents")
		return pipeline.InvalidRequest("Invalid data provided to reorder lesson contents")
	}

	if req.Anonymous() {
		logger.Warn("anonymous user attempting to reorder lesson contents")
		return pipeline.Forbidden()
	}

	if _, err := parseOrder(raw); err != nil {
		logger.Warn("reorder payload failed validation", "error", err)
		return pipeline.ValidationError(map[string]string{"reorder": reorderFailed})
	}
	return pipeline.Next()
}

// parseOrder checks the shape of {"order": [{"id": <uuid>, "sequence_id": <int>}, ...]}.
//
// Every entry has exactly these two keys, ids are unique ignoring case and the sequences are
// a permutation of 1..N.
func parseOrder(raw []byte) ([]models.Position, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(doc[reorderKey], &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, shared.ErrMissingItems
	}

	items := make([]position, 0, len(entries))
	for i, entry := range entries {
		idRaw, hasID := entry["id"]
		seqRaw, hasSeq := entry["sequence_id"]
		if len(entry) != 2 || !hasID || !hasSeq {
			return nil, invalidEntry(i, "expected exactly id and sequence_id")
		}

		var p position
		if err := json.Unmarshal(idRaw, &p.ID); err != nil {
			return nil, invalidEntry(i, "id is not a string")
		}
		seq, err := strconv.Atoi(string(bytes.TrimSpace(seqRaw)))
		if err != nil {
			return nil, invalidEntry(i, "sequence_id is not an integer")
		}
		p.SequenceID = seq
		items = append(items, p)
	}

	if errs := validatePayload(&struct {
		Order []position `json:"order" validate:"dive"`
	}{Order: items}); len(errs) > 0 {
		return nil, shared.ErrInvalidInput
	}

	ids := make(map[string]bool, len(items))
	seen := make([]bool, len(items)+1)
	out := make([]models.Position, 0, len(items))
	for i, p := range items {
		key := strings.ToLower(p.ID)
		if ids[key] {
			return nil, invalidEntry(i, "duplicate id")
		}
		ids[key] = true

		if p.SequenceID > len(items) || seen[p.SequenceID] {
			return nil, invalidEntry(i, "sequence_id outside 1..N or repeated")
		}
		seen[p.SequenceID] = true

		out = append(out, models.Position{ID: p.ID, SequenceID: p.SequenceID})
	}
	return out, nil
}

func invalidEntry(i int, reason string) error {
	return &entryError{index: i, reason: reason}
}

type entryError struct {
	index  int
	reason string
}

func (e *entryError) Error() string {
	return shared.ErrInvalidInput.Error() + ": entry " + strconv.Itoa(e.index) + ": " + e.reason
}

func (e *entryError) Unwrap() error { return shared.ErrInvalidInput }

func (h *ReorderLesson) Validate(ctx context.Context, req *pipeline.Request) (*reorderState, pipeline.Outcome) {
	logger := h.env.Logger
	g := h.env.Gateway

	items, err := parseOrder(bytes.TrimSpace(req.Payload))
	if err != nil {
		return nil, pipeline.ValidationError(map[string]string{"reorder": reorderFailed})
	}

	course, err := g.ResolveCourse(ctx, req.CourseID)
	if missing(err) {
		logger.Warn("course not found to reorder lesson contents", "course_id", req.CourseID, "error", err)
		return nil, pipeline.NotFound("")
	}
	if err != nil {
		logger.Error("failed to load course", "course_id", req.CourseID, "error", err)
		return nil, pipeline.InternalError("Error in reordering lesson contents")
	}
	if !access.CanEdit(course, req.UserID) {
		logger.Warn("user is not owner or collaborator of course to reorder lesson content", "course_id", course.ID, "user_id", req.UserID)
		return nil, pipeline.Forbidden()
	}

	unit, err := g.ResolveUnit(ctx, req.UnitID, course.ID)
	if err != nil {
		return nil, h.notFound("unit", req.UnitID, err)
	}

	lesson, err := g.ResolveLesson(ctx, req.LessonID, unit.ID, course.ID)
	if err != nil {
		return nil, h.notFound("lesson", req.LessonID, err)
	}

	return &reorderState{items: items, course: course, lesson: lesson}, pipeline.Next()
}

func (h *ReorderLesson) notFound(kind, id string, err error) pipeline.Outcome {
	if missing(err) || errors.Is(err, shared.ErrParentMismatch) {
		h.env.Logger.Warn(kind+" not found, aborting", "id", id, "error", err)
		return pipeline.NotFound("")
	}
	h.env.Logger.Error("failed to load "+kind, "id", id, "error", err)
	return pipeline.InternalError("Error in reordering lesson contents")
}

func (h *ReorderLesson) Execute(ctx context.Context, req *pipeline.Request, st *reorderState) pipeline.Outcome {
	now := h.env.now()
	at := st.lesson.Scope()

	err := h.env.Gateway.InTx(ctx, func(tx *repositories.Gateway) error {
		if err := tx.Lessons.Lock(ctx, st.lesson.ID); err != nil {
			return err
		}

		current, err := tx.Collections.ChildIDs(ctx, at.LessonID, at.UnitID, at.CourseID)
		if err != nil {
			return err
		}
		if len(current) != len(st.items) {
			h.env.Logger.Warn("reorder count mismatch", "lesson_id", st.lesson.ID, "current", len(current), "requested", len(st.items))
			return reject(pipeline.InvalidRequest("Collection/Assessment count mismatch"))
		}

		items := make([]models.Position, 0, len(st.items))
		for _, item := range st.items {
			id, ok := current[strings.ToLower(item.ID)]
			if !ok {
				h.env.Logger.Warn("reorder names an item outside the lesson", "lesson_id", st.lesson.ID, "id", item.ID)
				return reject(pipeline.InvalidRequest("Missing collection(s)/assessment(s)"))
			}
			items = append(items, models.Position{ID: id, SequenceID: item.SequenceID})
		}

		if err := tx.Collections.Resequence(ctx, items, req.UserID, at, now); err != nil {
			return err
		}
		return tx.Courses.Touch(ctx, st.course.ID, now)
	})
	if err != nil {
		return h.env.failure(err, "Error in reordering lesson contents")
	}

	h.env.invalidate(ctx, st.course.ID)
	h.env.Logger.Info("lesson contents reordered", "lesson_id", st.lesson.ID, "items", len(st.items))
	return pipeline.NoContent(&pipeline.Event{
		Kind:     pipeline.OpReorderLesson,
		LessonID: st.lesson.ID,
		CourseID: st.course.ID,
	})
}
