package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/curricula/internal/access"
	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
)

// movePayload names the source of a move. The target comes from the request path.
type movePayload struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
	UnitID   string `json:"unit_id" validate:"required,uuid"`
	LessonID string `json:"lesson_id" validate:"required,uuid"`
}

var moveFields = []string{"course_id", "unit_id", "lesson_id"}

type moveState struct {
	payload movePayload
	target  *models.Course
	source  *models.Course
	lesson  *models.Lesson
	toUnit  *models.Unit
}

// MoveLesson moves a lesson, with its collections and contents, under another unit that may
// belong to another course.
type MoveLesson struct {
	env *Env
}

func (h *MoveLesson) ReadOnly() bool { return false }

func (h *MoveLesson) CheckSanity(req *pipeline.Request) pipeline.Outcome {
	logger := h.env.Logger
	if !shared.ValidID(req.CourseID) {
		logger.Warn("invalid course id to move lesson", "course_id", req.CourseID)
		return pipeline.InvalidRequest("Invalid course id to move lesson")
	}
	if !shared.ValidID(req.UnitID) {
		logger.Warn("invalid unit id to move lesson", "unit_id", req.UnitID)
		return pipeline.InvalidRequest("Invalid unit id to move lesson")
	}
	if req.Anonymous() {
		logger.Warn("anonymous user attempting to move lesson")
		return pipeline.Forbidden()
	}

	raw := bytes.TrimSpace(req.Payload)
	var fields map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || len(fields) == 0 {
		logger.Warn("invalid request payload to move lesson")
		return pipeline.InvalidRequest("Invalid data provided to move lesson")
	}

	if errs := checkMoveFields(fields); len(errs) > 0 {
		logger.Warn("move payload failed field checks", "errors", errs)
		return pipeline.ValidationError(errs)
	}

	var payload movePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return pipeline.InvalidRequest("Invalid data provided to move lesson")
	}
	if errs := validatePayload(&payload); len(errs) > 0 {
		logger.Warn("move payload failed validation", "errors", errs)
		return pipeline.ValidationError(errs)
	}
	return pipeline.Next()
}

// checkMoveFields rejects unknown keys and empty values.
func checkMoveFields(fields map[string]any) map[string]string {
	errs := make(map[string]string)
	for key, value := range fields {
		if !contains(moveFields, key) {
			errs[key] = msgFieldNotAllowed
			continue
		}

		s, ok := value.(string)
		if !ok || s == "" {
			errs[key] = msgFieldEmpty
		}
	}
	return errs
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func (h *MoveLesson) Validate(ctx context.Context, req *pipeline.Request) (*moveState, pipeline.Outcome) {
	logger := h.env.Logger
	g := h.env.Gateway

	st := &moveState{}
	if err := json.Unmarshal(req.Payload, &st.payload); err != nil {
		return nil, pipeline.InvalidRequest("Invalid data provided to move lesson")
	}
	src := st.payload

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		st.target, err = g.ResolveCourse(gctx, req.CourseID)
		return err
	})
	eg.Go(func() (err error) {
		st.source, err = g.ResolveCourse(gctx, src.CourseID)
		return err
	})
	if err := eg.Wait(); missing(err) {
		logger.Warn("source or target course not found", "error", err)
		return nil, pipeline.NotFound("source or target course is deleted")
	} else if err != nil {
		logger.Error("failed to load course", "error", err)
		return nil, pipeline.InternalError("Error in moving lesson")
	}

	if !access.CanEdit(st.target, req.UserID) {
		logger.Warn("user is not owner or collaborator of target course", "course_id", st.target.ID, "user_id", req.UserID)
		return nil, pipeline.Forbidden()
	}
	if !access.CanEdit(st.source, req.UserID) {
		logger.Warn("user is not owner or collaborator of source course", "course_id", st.source.ID, "user_id", req.UserID)
		return nil, pipeline.Forbidden()
	}

	if _, out := h.unit(ctx, src.UnitID, st.source.ID, "source"); out.Status != pipeline.Continue {
		return nil, out
	}
	toUnit, out := h.unit(ctx, req.UnitID, st.target.ID, "target")
	if out.Status != pipeline.Continue {
		return nil, out
	}
	st.toUnit = toUnit

	lesson, err := g.Lessons.Find(ctx, src.LessonID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		logger.Warn("lesson not found", "lesson_id", src.LessonID)
		return nil, pipeline.NotFound("")
	case err != nil:
		logger.Error("failed to load lesson", "lesson_id", src.LessonID, "error", err)
		return nil, pipeline.InternalError("Error in moving lesson")
	case lesson.Deleted():
		logger.Warn("lesson is deleted", "lesson_id", lesson.ID)
		return nil, pipeline.NotFound("Lesson is deleted")
	case !shared.SameID(lesson.UnitID, src.UnitID):
		logger.Warn("lesson is not under source unit", "lesson_id", lesson.ID, "unit_id", src.UnitID)
		return nil, pipeline.InvalidRequest("Lesson is not associated with source unit")
	case !shared.SameID(lesson.CourseID, src.CourseID):
		logger.Warn("lesson is not under source course", "lesson_id", lesson.ID, "course_id", src.CourseID)
		return nil, pipeline.InvalidRequest("Lesson is not associated with source course")
	}
	st.lesson = lesson

	return st, pipeline.Next()
}

// unit resolves one end of the move. side is "source" or "target".
func (h *MoveLesson) unit(ctx context.Context, unitID, courseID, side string) (*models.Unit, pipeline.Outcome) {
	unit, err := h.env.Gateway.ResolveUnit(ctx, unitID, courseID)
	switch {
	case err == nil:
		return unit, pipeline.Next()
	case missing(err):
		h.env.Logger.Warn(side+" unit not found", "unit_id", unitID, "error", err)
		return nil, pipeline.NotFound(side + " unit is deleted")
	case errors.Is(err, shared.ErrParentMismatch):
		h.env.Logger.Warn(side+" unit is not under its course", "unit_id", unitID, "course_id", courseID)
		return nil, pipeline.InvalidRequest(side + " unit is not associated with " + side + " course")
	default:
		h.env.Logger.Error("failed to load unit", "unit_id", unitID, "error", err)
		return nil, pipeline.InternalError("Error in moving lesson")
	}
}

func (h *MoveLesson) Execute(ctx context.Context, req *pipeline.Request, st *moveState) pipeline.Outcome {
	now := h.env.now()
	to := models.Location{CourseID: st.target.ID, UnitID: st.toUnit.ID}
	owner := st.target.OwnerID

	err := h.env.Gateway.InTx(ctx, func(tx *repositories.Gateway) error {
		if err := tx.Lessons.Lock(ctx, st.lesson.ID); err != nil {
			return err
		}
		if err := tx.Lessons.Relocate(ctx, st.lesson.ID, st.lesson.Location(), to, owner, req.UserID, now); err != nil {
			return err
		}
		if _, err := tx.Collections.Relocate(ctx, st.lesson.ID, to, owner, req.UserID, now); err != nil {
			return err
		}
		if _, err := tx.Contents.Relocate(ctx, st.lesson.ID, to, owner, req.UserID, now); err != nil {
			return err
		}

		if err := tx.Courses.Touch(ctx, st.target.ID, now); err != nil {
			return err
		}
		if st.source.ID != st.target.ID {
			return tx.Courses.Touch(ctx, st.source.ID, now)
		}
		return nil
	})
	if err != nil {
		return h.env.failure(err, "Error in moving lesson")
	}

	h.env.invalidate(ctx, st.target.ID, st.source.ID)
	h.env.Logger.Info("lesson moved", "lesson_id", st.lesson.ID, "from", st.source.ID, "to", st.target.ID)
	return pipeline.NoContent(&pipeline.Event{
		Kind:     pipeline.OpMoveLesson,
		LessonID: st.lesson.ID,
		CourseID: st.target.ID,
	})
}
