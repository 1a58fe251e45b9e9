package main

import "github.com/urfave/cli/v3"

// outputFlags are shared by every command that prints an envelope.
func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output as JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty print JSON output (implies --json)",
		},
	}
}

// operationFlags adds the acting user and phase tracing to the output flags.
func operationFlags(flags ...cli.Flag) []cli.Flag {
	flags = append(flags,
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "ID of the acting user",
			Sources: cli.EnvVars("CURRICULA_USER"),
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "Log every pipeline phase with its status and duration",
		},
	)
	return append(flags, outputFlags()...)
}

func idFlag(name, usage string) *cli.StringFlag {
	return &cli.StringFlag{Name: name, Usage: usage, Required: true}
}

// setupCommand handles database setup and migrations.
func setupCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupRollback,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the course catalog HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port from config)",
			},
		},
		Action: r.Serve,
	}
}

func courseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "course",
		Usage: "Course operations",
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Show a course and its unit summary",
				Flags:  operationFlags(idFlag("course", "Course ID")),
				Action: r.CourseGet,
			},
		},
	}
}

func lessonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "lesson",
		Usage: "Lesson operations",
		Commands: []*cli.Command{
			{
				Name:  "move",
				Usage: "Move a lesson and its collections to another unit",
				Flags: operationFlags(
					idFlag("course", "Target course ID"),
					idFlag("unit", "Target unit ID"),
					idFlag("from-course", "Source course ID"),
					idFlag("from-unit", "Source unit ID"),
					idFlag("lesson", "Lesson ID"),
				),
				Action: r.LessonMove,
			},
			{
				Name:  "reorder",
				Usage: "Resequence the collections and assessments of a lesson",
				Flags: operationFlags(
					idFlag("course", "Course ID"),
					idFlag("unit", "Unit ID"),
					idFlag("lesson", "Lesson ID"),
					&cli.StringFlag{
						Name:  "file",
						Usage: "JSON file holding the request body ({\"order\": [...]})",
					},
					&cli.StringFlag{
						Name:  "order",
						Usage: "Comma separated id=sequence pairs",
					},
				),
				Action: r.LessonReorder,
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Usage:   "Soft-delete a lesson with its collections and contents",
				Flags: operationFlags(
					idFlag("course", "Course ID"),
					idFlag("unit", "Unit ID"),
					idFlag("lesson", "Lesson ID"),
				),
				Action: r.LessonDelete,
			},
		},
	}
}

func seedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load a TOML fixture of courses, units, lessons and collections",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the TOML fixture",
				Required: true,
			},
		}, outputFlags()...),
		Action: r.Seed,
	}
}

// cacheCommand inspects the optional course outline cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the course outline cache",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the cached outline of a course",
				Flags:  append([]cli.Flag{idFlag("course", "Course ID")}, outputFlags()...),
				Action: r.CacheShow,
			},
			{
				Name:  "clear",
				Usage: "Drop cached course outlines",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "course",
						Usage:    "Course ID (repeatable)",
						Required: true,
					},
				},
				Action: r.CacheClear,
			},
		},
	}
}

func eventsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Post-commit event stream",
		Commands: []*cli.Command{
			{
				Name:   "listen",
				Usage:  "Print events published on the Redis channel",
				Flags:  outputFlags(),
				Action: r.EventsListen,
			},
		},
	}
}
