package main

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
)

// Fixture is the TOML document accepted by the seed command.
type Fixture struct {
	Courses []CourseFixture `toml:"course"`
}

type CourseFixture struct {
	ID            string        `toml:"id"`
	Title         string        `toml:"title"`
	Owner         string        `toml:"owner"`
	Collaborators []string      `toml:"collaborators"`
	Units         []UnitFixture `toml:"unit"`
}

type UnitFixture struct {
	ID       string          `toml:"id"`
	Title    string          `toml:"title"`
	Sequence int             `toml:"sequence"`
	Lessons  []LessonFixture `toml:"lesson"`
}

// LessonFixture defaults its owner to the course owner.
type LessonFixture struct {
	ID          string              `toml:"id"`
	Title       string              `toml:"title"`
	Owner       string              `toml:"owner"`
	Sequence    int                 `toml:"sequence"`
	Collections []CollectionFixture `toml:"collection"`
}

type CollectionFixture struct {
	ID       string   `toml:"id"`
	Title    string   `toml:"title"`
	Format   string   `toml:"format"`
	Sequence int      `toml:"sequence"`
	Contents []string `toml:"contents"`
}

// SeedResult counts the rows a fixture created.
type SeedResult struct {
	Courses     []string `json:"courses"`
	Units       int      `json:"units"`
	Lessons     int      `json:"lessons"`
	Collections int      `json:"collections"`
	Contents    int      `json:"contents"`
}

// LoadFixture decodes a seed fixture from path.
func LoadFixture(path string) (*Fixture, error) {
	var f Fixture
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if len(f.Courses) == 0 {
		return nil, fmt.Errorf("%w: fixture %s has no [[course]] tables", shared.ErrInvalidInput, path)
	}
	return &f, nil
}

// Apply inserts every row of f in one transaction.
func (f *Fixture) Apply(ctx context.Context, g *repositories.Gateway) (*SeedResult, error) {
	res := &SeedResult{}
	err := g.InTx(ctx, func(tx *repositories.Gateway) error {
		for _, cf := range f.Courses {
			course := &models.Course{
				Record:       models.Record{ID: cf.ID, OwnerID: cf.Owner},
				Title:        cf.Title,
				Collaborator: models.Collaborators(cf.Collaborators),
			}
			if err := tx.Courses.Create(ctx, course); err != nil {
				return fmt.Errorf("course %q: %w", cf.Title, err)
			}
			res.Courses = append(res.Courses, course.ID)

			for _, uf := range cf.Units {
				if err := seedUnit(ctx, tx, course, uf, res); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func seedUnit(ctx context.Context, tx *repositories.Gateway, course *models.Course, uf UnitFixture, res *SeedResult) error {
	unit := &models.Unit{
		Record:     models.Record{ID: uf.ID, OwnerID: course.OwnerID},
		CourseID:   course.ID,
		Title:      uf.Title,
		SequenceID: uf.Sequence,
	}
	if err := tx.Units.Create(ctx, unit); err != nil {
		return fmt.Errorf("unit %q: %w", uf.Title, err)
	}
	res.Units++

	for _, lf := range uf.Lessons {
		owner := lf.Owner
		if owner == "" {
			owner = course.OwnerID
		}
		lesson := &models.Lesson{
			Record:     models.Record{ID: lf.ID, OwnerID: owner},
			CourseID:   course.ID,
			UnitID:     unit.ID,
			Title:      lf.Title,
			SequenceID: lf.Sequence,
		}
		if err := tx.Lessons.Create(ctx, lesson); err != nil {
			return fmt.Errorf("lesson %q: %w", lf.Title, err)
		}
		res.Lessons++

		for _, cf := range lf.Collections {
			if err := seedCollection(ctx, tx, lesson, cf, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedCollection(ctx context.Context, tx *repositories.Gateway, lesson *models.Lesson, cf CollectionFixture, res *SeedResult) error {
	format := cf.Format
	if format == "" {
		format = models.FormatCollection
	}
	collection := &models.Collection{
		Record:     models.Record{ID: cf.ID, OwnerID: lesson.OwnerID},
		CourseID:   lesson.CourseID,
		UnitID:     lesson.UnitID,
		LessonID:   lesson.ID,
		Title:      cf.Title,
		Format:     format,
		SequenceID: cf.Sequence,
	}
	if err := tx.Collections.Create(ctx, collection); err != nil {
		return fmt.Errorf("collection %q: %w", cf.Title, err)
	}
	res.Collections++

	for i, title := range cf.Contents {
		content := &models.Content{
			Record:       models.Record{OwnerID: lesson.OwnerID},
			CourseID:     lesson.CourseID,
			UnitID:       lesson.UnitID,
			LessonID:     lesson.ID,
			CollectionID: collection.ID,
			Title:        title,
			SequenceID:   i + 1,
		}
		if err := tx.Contents.Create(ctx, content); err != nil {
			return fmt.Errorf("content %q: %w", title, err)
		}
		res.Contents++
	}
	return nil
}

// Seed loads a TOML fixture into the configured database.
func (r *Runner) Seed(ctx context.Context, cmd *cli.Command) error {
	fixture, err := LoadFixture(cmd.String("file"))
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	res, err := fixture.Apply(ctx, r.gateway)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}
	r.logger.Info("seeded fixture", "file", cmd.String("file"), "courses", len(res.Courses), "lessons", res.Lessons)

	if cmd.Bool("json") {
		return r.writeJSON(res, cmd.Bool("pretty"))
	}
	r.writePlain("✓ Seeded %d course(s), %d unit(s), %d lesson(s), %d collection(s), %d content(s)\n",
		len(res.Courses), res.Units, res.Lessons, res.Collections, res.Contents)
	for _, id := range res.Courses {
		r.writePlain("  %s\n", id)
	}
	return nil
}
