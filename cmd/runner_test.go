package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curricula/internal/formatter"
	"github.com/desertthunder/curricula/internal/models"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
	tu "github.com/desertthunder/curricula/internal/testing"
)

type cliFixture struct {
	db       *sql.DB
	g        *repositories.Gateway
	seed     *tu.Seeder
	notifier *tu.RecordingNotifier
	output   *bytes.Buffer
	logs     *bytes.Buffer
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	db := tu.NewTestDB(t)
	g := repositories.NewGateway(db, tu.SQLite)
	return &cliFixture{
		db:       db,
		g:        g,
		seed:     tu.NewSeeder(t, g),
		notifier: &tu.RecordingNotifier{},
		output:   &bytes.Buffer{},
		logs:     &bytes.Buffer{},
	}
}

// run executes args against a fresh app sharing the fixture database.
func (f *cliFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	f.output.Reset()

	runner := NewRunner(RunnerOpts{
		Logger:   shared.NewLogger(f.logs),
		Output:   f.output,
		DB:       f.db,
		Notifier: f.notifier,
	})
	app := &cli.Command{
		Name:      "curricula",
		Commands:  runner.register(),
		Writer:    &bytes.Buffer{},
		ErrWriter: &bytes.Buffer{},
	}
	return app.Run(context.Background(), append([]string{"curricula"}, args...))
}

func (f *cliFixture) envelope(t *testing.T) formatter.Envelope {
	t.Helper()
	var env formatter.Envelope
	if err := json.Unmarshal(f.output.Bytes(), &env); err != nil {
		t.Fatalf("output is not a JSON envelope: %v\n%s", err, f.output.String())
	}
	return env
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			notifier := &tu.RecordingNotifier{}

			runner := NewRunner(RunnerOpts{
				Config:   config,
				Logger:   logger,
				Output:   output,
				Notifier: notifier,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.notifier != notifier {
				t.Error("expected notifier to be set")
			}
			if runner.proc != nil || runner.db != nil {
				t.Error("expected database and processor to be opened lazily")
			}
		})

		t.Run("with defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config")
			}
			if runner.logger == nil {
				t.Error("expected default logger")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.dialect().Driver != shared.DriverSQLite {
				t.Errorf("expected sqlite dialect, got %q", runner.dialect().Driver)
			}
		})
	})

	t.Run("open", func(t *testing.T) {
		t.Run("is idempotent", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: tu.QuietLogger(), DB: tu.NewTestDB(t), Notifier: &tu.RecordingNotifier{}})
			if err := runner.open(context.Background()); err != nil {
				t.Fatalf("open failed: %v", err)
			}
			proc := runner.proc
			if err := runner.open(context.Background()); err != nil {
				t.Fatalf("second open failed: %v", err)
			}
			if runner.proc != proc {
				t.Error("expected the processor to be reused")
			}
			if err := runner.Close(); err != nil {
				t.Errorf("close failed: %v", err)
			}
		})

		t.Run("rejects an unknown event driver", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Events.Driver = "carrier-pigeon"
			runner := NewRunner(RunnerOpts{Config: config, Logger: tu.QuietLogger(), DB: tu.NewTestDB(t)})

			err := runner.open(context.Background())
			if !errors.Is(err, shared.ErrUnknownChannel) {
				t.Errorf("expected ErrUnknownChannel, got %v", err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("writePlainln surrounds text with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.writePlainln("done")
			if output.String() != "\ndone\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := make(map[string]bool)
		for _, cmd := range commands {
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "serve", "course", "lesson", "seed", "cache", "events"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestCatalogCommands(t *testing.T) {
	t.Run("course get prints the outline envelope", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 2)

		if err := f.run(t, "course", "get", "--course", tree.Course.ID, "--json"); err != nil {
			t.Fatalf("course get failed: %v", err)
		}

		env := f.envelope(t)
		if env.Status != "ok" || env.Code != 200 {
			t.Fatalf("unexpected envelope %+v", env)
		}
		if !strings.Contains(f.output.String(), tree.Unit.ID) {
			t.Errorf("expected unit summary in output: %s", f.output.String())
		}
	})

	t.Run("course get renders text by default", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 1)

		if err := f.run(t, "course", "get", "--course", tree.Course.ID); err != nil {
			t.Fatalf("course get failed: %v", err)
		}
		if !strings.Contains(f.output.String(), "ok (200)") || !strings.Contains(f.output.String(), "Unit 1") {
			t.Errorf("unexpected output:\n%s", f.output.String())
		}
	})

	t.Run("failed outcomes print without returning an error", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run(t, "course", "get", "--course", "not-a-uuid", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if env := f.envelope(t); env.Status != "invalid_request" || env.Code != 400 {
			t.Errorf("unexpected envelope %+v", env)
		}
	})

	t.Run("lesson reorder with --order", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 3)
		a, b, c := tree.Collections[0].ID, tree.Collections[1].ID, tree.Collections[2].ID

		err := f.run(t, "lesson", "reorder",
			"--course", tree.Course.ID, "--unit", tree.Unit.ID, "--lesson", tree.Lesson.ID,
			"--user", "owner-a", "--order", a+"=3,"+b+"=1,"+c+"=2", "--json")
		if err != nil {
			t.Fatalf("reorder failed: %v", err)
		}
		if env := f.envelope(t); env.Status != "no_content" || env.Event == nil || env.Event.Kind != pipeline.OpReorderLesson {
			t.Fatalf("unexpected envelope %s", f.output.String())
		}

		list, err := f.g.Collections.List(context.Background(), tree.Lesson.ID)
		if err != nil {
			t.Fatal(err)
		}
		got := []string{list[0].ID, list[1].ID, list[2].ID}
		want := []string{b, c, a}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected order %v, got %v", want, got)
			}
		}
		if len(f.notifier.Events()) != 1 {
			t.Errorf("expected one event, got %d", len(f.notifier.Events()))
		}
	})

	t.Run("lesson reorder with --file", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 2)
		a, b := tree.Collections[0].ID, tree.Collections[1].ID

		path := filepath.Join(t.TempDir(), "order.json")
		body := `{"order":[{"id":"` + a + `","sequence_id":2},{"id":"` + b + `","sequence_id":1}]}`
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}

		err := f.run(t, "lesson", "reorder",
			"--course", tree.Course.ID, "--unit", tree.Unit.ID, "--lesson", tree.Lesson.ID,
			"--user", "owner-a", "--file", path, "--json")
		if err != nil {
			t.Fatalf("reorder failed: %v", err)
		}
		if env := f.envelope(t); env.Status != "no_content" {
			t.Errorf("unexpected envelope %s", f.output.String())
		}
	})

	t.Run("lesson reorder flag errors", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 1)
		base := []string{"lesson", "reorder", "--course", tree.Course.ID, "--unit", tree.Unit.ID, "--lesson", tree.Lesson.ID, "--user", "owner-a"}

		if err := f.run(t, base...); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := f.run(t, append(base, "--order", "x=1", "--file", "order.json")...); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("lesson move across courses", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 2)
		target := f.seed.Course("owner-a")
		unit := f.seed.Unit(target, 1)

		err := f.run(t, "lesson", "move",
			"--course", target.ID, "--unit", unit.ID,
			"--from-course", tree.Course.ID, "--from-unit", tree.Unit.ID, "--lesson", tree.Lesson.ID,
			"--user", "owner-a", "--json")
		if err != nil {
			t.Fatalf("move failed: %v", err)
		}
		if env := f.envelope(t); env.Status != "no_content" {
			t.Fatalf("unexpected envelope %s", f.output.String())
		}

		lesson, err := f.g.Lessons.Find(context.Background(), tree.Lesson.ID)
		if err != nil {
			t.Fatal(err)
		}
		if lesson.CourseID != target.ID || lesson.UnitID != unit.ID {
			t.Errorf("expected lesson under %s/%s, got %s/%s", target.ID, unit.ID, lesson.CourseID, lesson.UnitID)
		}
	})

	t.Run("lesson delete then delete again", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 1)
		args := []string{"lesson", "delete", "--course", tree.Course.ID, "--unit", tree.Unit.ID, "--lesson", tree.Lesson.ID, "--user", "owner-a", "--json"}

		if err := f.run(t, args...); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if env := f.envelope(t); env.Status != "no_content" {
			t.Fatalf("unexpected envelope %s", f.output.String())
		}

		if err := f.run(t, args...); err != nil {
			t.Fatalf("second delete failed: %v", err)
		}
		if env := f.envelope(t); env.Status != "not_found" {
			t.Errorf("expected not_found, got %s", f.output.String())
		}
	})

	t.Run("anonymous mutation is forbidden", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 1)
		t.Setenv("CURRICULA_USER", "")

		err := f.run(t, "lesson", "delete", "--course", tree.Course.ID, "--unit", tree.Unit.ID, "--lesson", tree.Lesson.ID, "--json")
		if err != nil {
			t.Fatal(err)
		}
		if env := f.envelope(t); env.Status != "forbidden" {
			t.Errorf("expected forbidden, got %s", f.output.String())
		}
	})

	t.Run("user falls back to CURRICULA_USER", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 1)
		t.Setenv("CURRICULA_USER", "owner-a")

		err := f.run(t, "lesson", "delete", "--course", tree.Course.ID, "--unit", tree.Unit.ID, "--lesson", tree.Lesson.ID, "--json")
		if err != nil {
			t.Fatal(err)
		}
		if env := f.envelope(t); env.Status != "no_content" {
			t.Errorf("expected no_content, got %s", f.output.String())
		}
	})

	t.Run("trace logs every phase", func(t *testing.T) {
		f := newCLIFixture(t)
		tree := f.seed.Tree("owner-a", 1)

		if err := f.run(t, "course", "get", "--course", tree.Course.ID, "--trace", "--json"); err != nil {
			t.Fatal(err)
		}
		for _, phase := range []string{"sanity", "validate", "execute"} {
			if !strings.Contains(f.logs.String(), phase) {
				t.Errorf("expected %s phase in trace log:\n%s", phase, f.logs.String())
			}
		}
	})
}

func TestParseOrderFlag(t *testing.T) {
	t.Run("pairs", func(t *testing.T) {
		got, err := parseOrderFlag(" a=2, b=1 ,")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []models.Position{{ID: "a", SequenceID: 2}, {ID: "b", SequenceID: 1}}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	for _, input := range []string{"", ",", "a", "a=x"} {
		t.Run("rejects "+input, func(t *testing.T) {
			if _, err := parseOrderFlag(input); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

const fixtureTOML = `
[[course]]
title = "Algebra"
owner = "owner-a"
collaborators = ["helper"]

  [[course.unit]]
  title = "Linear equations"
  sequence = 1

    [[course.unit.lesson]]
    title = "Slope"
    sequence = 1

      [[course.unit.lesson.collection]]
      title = "Reading"
      sequence = 1
      contents = ["Intro", "Worked example"]

      [[course.unit.lesson.collection]]
      title = "Check"
      format = "assessment"
      sequence = 2
      contents = ["Question 1"]
`

func TestSeed(t *testing.T) {
	t.Run("loads a fixture", func(t *testing.T) {
		f := newCLIFixture(t)
		path := filepath.Join(t.TempDir(), "seed.toml")
		if err := os.WriteFile(path, []byte(fixtureTOML), 0644); err != nil {
			t.Fatal(err)
		}

		if err := f.run(t, "seed", "--file", path, "--json"); err != nil {
			t.Fatalf("seed failed: %v", err)
		}

		var res SeedResult
		if err := json.Unmarshal(f.output.Bytes(), &res); err != nil {
			t.Fatalf("unexpected output %s", f.output.String())
		}
		if len(res.Courses) != 1 || res.Units != 1 || res.Lessons != 1 || res.Collections != 2 || res.Contents != 3 {
			t.Errorf("unexpected counts %+v", res)
		}

		course, err := f.g.Courses.Find(context.Background(), res.Courses[0])
		if err != nil {
			t.Fatal(err)
		}
		if course.Title != "Algebra" || !course.Collaborator.Contains("helper") {
			t.Errorf("unexpected course %+v", course)
		}
	})

	t.Run("rolls back on an invalid row", func(t *testing.T) {
		f := newCLIFixture(t)
		path := filepath.Join(t.TempDir(), "seed.toml")
		broken := fixtureTOML + `
      [[course.unit.lesson.collection]]
      title = "Bad"
      format = "video"
      sequence = 3
`
		if err := os.WriteFile(path, []byte(broken), 0644); err != nil {
			t.Fatal(err)
		}

		if err := f.run(t, "seed", "--file", path); err == nil {
			t.Fatal("expected seed to fail")
		}
		if rows := tu.Snapshot(t, f.db, "courses", "id"); len(rows) != 0 {
			t.Errorf("expected no courses after rollback, got %v", rows)
		}
	})

	t.Run("rejects an empty fixture", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.toml")
		if err := os.WriteFile(path, []byte("# nothing\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFixture(path); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	configPath := filepath.Join(dir, "config.toml")
	config := "[database]\ndriver = \"sqlite3\"\ndsn = \"" + filepath.ToSlash(dbPath) + "\"\nmax_open_conns = 1\nmax_idle_conns = 1\n"
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	f := newCLIFixture(t)

	t.Run("database", func(t *testing.T) {
		if err := f.run(t, "setup", "database", "--config", configPath); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		tu.AssertFileExists(t, dbPath)
	})

	t.Run("rollback", func(t *testing.T) {
		if err := f.run(t, "setup", "rollback", "--config", configPath); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		if !strings.Contains(f.output.String(), "rolled back") {
			t.Errorf("unexpected output %q", f.output.String())
		}
	})
}

func TestOptionalBackends(t *testing.T) {
	t.Run("cache commands need the cache enabled", func(t *testing.T) {
		f := newCLIFixture(t)
		err := f.run(t, "cache", "show", "--course", shared.GenerateID())
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("events listen needs the redis driver", func(t *testing.T) {
		f := newCLIFixture(t)
		err := f.run(t, "events", "listen")
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}
