package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curricula/internal/formatter"
	"github.com/desertthunder/curricula/internal/shared"
)

func (r *Runner) courseCache(ctx context.Context) error {
	if !r.config.Cache.Enabled {
		return fmt.Errorf("%w: cache.enabled is false", shared.ErrMissingConfig)
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	if r.cache == nil {
		return fmt.Errorf("course cache at %s is unreachable", r.config.Cache.RedisAddr)
	}
	return nil
}

// CacheShow prints the cached outline of a course without touching the database.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	if err := r.courseCache(ctx); err != nil {
		return err
	}

	courseID := cmd.String("course")
	outline, ok := r.cache.Get(ctx, courseID)
	if !ok {
		return r.writePlain("no cached outline for %s\n", courseID)
	}
	if cmd.Bool("json") {
		return r.writeJSON(outline, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", formatter.Outline(outline))
}

// CacheClear drops the cached outlines of the given courses.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.courseCache(ctx); err != nil {
		return err
	}

	ids := cmd.StringSlice("course")
	r.cache.Invalidate(ctx, ids...)
	r.logger.Info("cache cleared", "courses", len(ids))
	return r.writePlain("✓ Cleared %d cached course outline(s)\n", len(ids))
}
