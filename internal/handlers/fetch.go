package handlers

import (
	"context"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/shared"
)

// FetchCourse returns a live course together with the summary of its live units.
type FetchCourse struct {
	env *Env
}

func (h *FetchCourse) ReadOnly() bool { return true }

func (h *FetchCourse) CheckSanity(req *pipeline.Request) pipeline.Outcome {
	if !shared.ValidID(req.CourseID) {
		h.env.Logger.Warn("invalid course id to fetch", "course_id", req.CourseID)
		return pipeline.InvalidRequest("Invalid course id provided")
	}
	return pipeline.Next()
}

func (h *FetchCourse) Validate(context.Context, *pipeline.Request) (struct{}, pipeline.Outcome) {
	return struct{}{}, pipeline.Next()
}

func (h *FetchCourse) Execute(ctx context.Context, req *pipeline.Request, _ struct{}) pipeline.Outcome {
	var gen int64
	cacheable := false
	if h.env.Cache != nil {
		if outline, ok := h.env.Cache.Get(ctx, req.CourseID); ok {
			h.env.Logger.Debug("course outline served from cache", "course_id", req.CourseID)
			return pipeline.OK(outline)
		}
		gen, cacheable = h.env.Cache.Generation(ctx, req.CourseID)
	}

	g := h.env.Gateway
	course, err := g.ResolveCourse(ctx, req.CourseID)
	if missing(err) {
		h.env.Logger.Warn("course not found", "course_id", req.CourseID, "error", err)
		return pipeline.NotFound("")
	}
	if err != nil {
		h.env.Logger.Error("failed to load course", "course_id", req.CourseID, "error", err)
		return pipeline.InternalError("Error in fetching course")
	}

	units, err := g.Units.Summaries(ctx, course.ID)
	if err != nil {
		h.env.Logger.Error("failed to load unit summary", "course_id", course.ID, "error", err)
		return pipeline.InternalError("Error in fetching course")
	}
	if units == nil {
		units = []models.UnitSummary{}
	}

	outline := &models.CourseOutline{Course: course, Units: units}
	if cacheable {
		h.env.Cache.Set(ctx, outline, gen)
	}
	return pipeline.OK(outline)
}
