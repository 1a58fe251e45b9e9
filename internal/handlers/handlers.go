package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
)

// OutlineCache is the read-through cache consulted by the fetch operation.
//
// [repositories.CourseCache] implements it.
type OutlineCache interface {
	Get(ctx context.Context, courseID string) (*models.CourseOutline, bool)
	// Generation is read before loading from the database and handed back to Set, which drops
	// the outline if the course was invalidated in between.
	Generation(ctx context.Context, courseID string) (int64, bool)
	Set(ctx context.Context, outline *models.CourseOutline, gen int64)
	Invalidate(ctx context.Context, courseIDs ...string)
}

// Env carries the collaborators every handler needs.
type Env struct {
	Gateway *repositories.Gateway
	Cache   OutlineCache // optional
	Logger  *log.Logger
	Now     func() time.Time
}

// NewEnv creates an Env with a wall clock. cache may be nil.
func NewEnv(g *repositories.Gateway, cache OutlineCache, logger *log.Logger) *Env {
	return &Env{Gateway: g, Cache: cache, Logger: logger, Now: time.Now}
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e *Env) invalidate(ctx context.Context, courseIDs ...string) {
	if e.Cache != nil {
		e.Cache.Invalidate(ctx, courseIDs...)
	}
}

// Register adds the catalog operations to reg.
func Register(reg *pipeline.Registry, env *Env) {
	reg.Register(pipeline.OpFetchCourse, func() pipeline.Operation {
		return pipeline.Bind[struct{}](&FetchCourse{env: env})
	})
	reg.Register(pipeline.OpMoveLesson, func() pipeline.Operation {
		return pipeline.Bind[*moveState](&MoveLesson{env: env})
	})
	reg.Register(pipeline.OpReorderLesson, func() pipeline.Operation {
		return pipeline.Bind[*reorderState](&ReorderLesson{env: env})
	})
	reg.Register(pipeline.OpDeleteLesson, func() pipeline.Operation {
		return pipeline.Bind[*deleteState](&DeleteLesson{env: env})
	})
}

// rejection aborts a transaction with a prepared outcome.
type rejection struct {
	out pipeline.Outcome
}

func (r *rejection) Error() string {
	if r.out.Response.Reason != "" {
		return r.out.Response.Reason
	}
	return r.out.Response.Kind.String()
}

func reject(out pipeline.Outcome) error { return &rejection{out: out} }

// failure converts a write error into the outcome reported to the caller.
func (e *Env) failure(err error, reason string) pipeline.Outcome {
	var rej *rejection
	if errors.As(err, &rej) {
		return rej.out
	}

	if errors.Is(err, shared.ErrNotFound) {
		e.Logger.Warn("row vanished during write", "error", err)
		return pipeline.NotFound("")
	}

	if fields := repositories.FieldErrors(err); fields != nil {
		e.Logger.Warn("write rejected by constraint", "fields", fields, "error", err)
		return pipeline.ValidationError(fields)
	}

	e.Logger.Error(reason, "error", err)
	return pipeline.InternalError(reason)
}

func missing(err error) bool {
	return errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrDeleted)
}
