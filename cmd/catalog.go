package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/shared"
)

func request(cmd *cli.Command) *pipeline.Request {
	return &pipeline.Request{
		CourseID: cmd.String("course"),
		UnitID:   cmd.String("unit"),
		LessonID: cmd.String("lesson"),
		UserID:   cmd.String("user"),
	}
}

// CourseGet prints a course with its unit summary.
func (r *Runner) CourseGet(ctx context.Context, cmd *cli.Command) error {
	return r.dispatch(ctx, cmd, pipeline.OpFetchCourse, request(cmd))
}

// LessonMove moves a lesson from --from-course/--from-unit to --course/--unit.
func (r *Runner) LessonMove(ctx context.Context, cmd *cli.Command) error {
	req := request(cmd)
	req.LessonID = ""

	payload, err := json.Marshal(map[string]string{
		"course_id": cmd.String("from-course"),
		"unit_id":   cmd.String("from-unit"),
		"lesson_id": cmd.String("lesson"),
	})
	if err != nil {
		return fmt.Errorf("failed to encode move payload: %w", err)
	}
	req.Payload = payload

	return r.dispatch(ctx, cmd, pipeline.OpMoveLesson, req)
}

// LessonReorder resequences the collections of a lesson.
//
// The order comes either from a JSON file holding the request body or from --order given as
// comma separated id=sequence pairs.
func (r *Runner) LessonReorder(ctx context.Context, cmd *cli.Command) error {
	file, order := cmd.String("file"), cmd.String("order")
	if file == "" && order == "" {
		return fmt.Errorf("%w: either --file or --order must be provided", shared.ErrMissingArgument)
	}
	if file != "" && order != "" {
		return fmt.Errorf("%w: cannot specify both --file and --order", shared.ErrInvalidArgument)
	}

	req := request(cmd)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read order file: %w", err)
		}
		req.Payload = data
	} else {
		positions, err := parseOrderFlag(order)
		if err != nil {
			return err
		}
		data, err := json.Marshal(map[string][]models.Position{"order": positions})
		if err != nil {
			return fmt.Errorf("failed to encode order: %w", err)
		}
		req.Payload = data
	}

	return r.dispatch(ctx, cmd, pipeline.OpReorderLesson, req)
}

// parseOrderFlag reads "id=1,id=2" into positions.
func parseOrderFlag(s string) ([]models.Position, error) {
	var positions []models.Position
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, seq, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: expected id=sequence, got %q", shared.ErrInvalidArgument, pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(seq))
		if err != nil {
			return nil, fmt.Errorf("%w: sequence of %s is not a number", shared.ErrInvalidArgument, id)
		}
		positions = append(positions, models.Position{ID: strings.TrimSpace(id), SequenceID: n})
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: empty order", shared.ErrInvalidArgument)
	}
	return positions, nil
}

// LessonDelete soft-deletes a lesson and everything under it.
func (r *Runner) LessonDelete(ctx context.Context, cmd *cli.Command) error {
	return r.dispatch(ctx, cmd, pipeline.OpDeleteLesson, request(cmd))
}
