package handlers

import (
	"context"
	"errors"

	"github.com/desertthunder/curricula/internal/access"
	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
)

type deleteState struct {
	course *models.Course
	lesson *models.Lesson
}

// DeleteLesson soft-deletes a lesson along with its collections and contents.
type DeleteLesson struct {
	env *Env
}

func (h *DeleteLesson) ReadOnly() bool { return false }

func (h *DeleteLesson) CheckSanity(req *pipeline.Request) pipeline.Outcome {
	logger := h.env.Logger
	switch {
	case !shared.ValidID(req.CourseID):
		logger.Warn("invalid course id to delete lesson", "course_id", req.CourseID)
		return pipeline.InvalidRequest("Invalid course id provided to delete lesson")
	case !shared.ValidID(req.UnitID):
		logger.Warn("invalid unit id to delete lesson", "unit_id", req.UnitID)
		return pipeline.InvalidRequest("Invalid unit id provided to delete lesson")
	case !shared.ValidID(req.LessonID):
		logger.Warn("invalid lesson id to delete lesson", "lesson_id", req.LessonID)
		return pipeline.InvalidRequest("Invalid lesson id provided to delete lesson")
	case req.Anonymous():
		logger.Warn("anonymous user attempting to delete lesson")
		return pipeline.Forbidden()
	}
	return pipeline.Next()
}

func (h *DeleteLesson) Validate(ctx context.Context, req *pipeline.Request) (*deleteState, pipeline.Outcome) {
	logger := h.env.Logger
	g := h.env.Gateway

	course, err := g.ResolveCourse(ctx, req.CourseID)
	switch {
	case errors.Is(err, shared.ErrDeleted):
		logger.Warn("course is deleted", "course_id", req.CourseID)
		return nil, pipeline.NotFound("Course is deleted for which you are trying to delete lesson")
	case errors.Is(err, shared.ErrNotFound):
		logger.Warn("course not found to delete lesson", "course_id", req.CourseID)
		return nil, pipeline.NotFound("")
	case err != nil:
		logger.Error("failed to load course", "course_id", req.CourseID, "error", err)
		return nil, pipeline.InternalError("Error in deleting lesson")
	}

	if err := access.Check(course, req.UserID); err != nil {
		logger.Warn("user cannot delete lesson", "course_id", course.ID, "user_id", req.UserID, "error", err)
		return nil, pipeline.Forbidden()
	}

	unit, err := g.ResolveUnit(ctx, req.UnitID, course.ID)
	if err != nil {
		return nil, h.rejectParent(models.KindUnit, req.UnitID, err)
	}

	lesson, err := g.ResolveLesson(ctx, req.LessonID, unit.ID, course.ID)
	if err != nil {
		return nil, h.rejectParent(models.KindLesson, req.LessonID, err)
	}

	return &deleteState{course: course, lesson: lesson}, pipeline.Next()
}

func (h *DeleteLesson) rejectParent(kind models.Kind, id string, err error) pipeline.Outcome {
	logger := h.env.Logger
	switch {
	case errors.Is(err, shared.ErrDeleted):
		logger.Warn(string(kind)+" is deleted", "id", id)
		if kind == models.KindUnit {
			return pipeline.NotFound("Unit is deleted")
		}
		return pipeline.NotFound("Lesson is deleted")
	case errors.Is(err, shared.ErrNotFound):
		logger.Warn(string(kind)+" not found", "id", id)
		return pipeline.NotFound("")
	case errors.Is(err, shared.ErrParentMismatch):
		logger.Warn(string(kind)+" is not under the requested parents", "id", id, "error", err)
		return pipeline.NotFound("")
	default:
		logger.Error("failed to load "+string(kind), "id", id, "error", err)
		return pipeline.InternalError("Error in deleting lesson")
	}
}

func (h *DeleteLesson) Execute(ctx context.Context, req *pipeline.Request, st *deleteState) pipeline.Outcome {
	now := h.env.now()

	err := h.env.Gateway.InTx(ctx, func(tx *repositories.Gateway) error {
		if err := tx.Lessons.Lock(ctx, st.lesson.ID); err != nil {
			return err
		}
		if err := tx.Lessons.Delete(ctx, st.lesson.ID, st.lesson.Location(), req.UserID, now); err != nil {
			return err
		}
		if _, err := tx.Collections.DeleteByLesson(ctx, st.lesson.ID, req.UserID, now); err != nil {
			return err
		}
		if _, err := tx.Contents.DeleteByLesson(ctx, st.lesson.ID, req.UserID, now); err != nil {
			return err
		}
		return tx.Courses.Touch(ctx, st.course.ID, now)
	})
	if err != nil {
		return h.env.failure(err, "Error in deleting lesson")
	}

	h.env.invalidate(ctx, st.course.ID)
	h.env.Logger.Info("lesson deleted", "lesson_id", st.lesson.ID, "course_id", st.course.ID)
	return pipeline.NoContent(&pipeline.Event{
		Kind:     pipeline.OpDeleteLesson,
		LessonID: st.lesson.ID,
		CourseID: st.course.ID,
	})
}
