package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curricula/internal/events"
	"github.com/desertthunder/curricula/internal/formatter"
	"github.com/desertthunder/curricula/internal/handlers"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/repositories"
	"github.com/desertthunder/curricula/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, cache, notifier and processor are opened on first use so commands such as
// setup never touch them.
type Runner struct {
	config   *shared.Config
	logger   *log.Logger
	output   io.Writer
	db       *sql.DB
	notifier pipeline.Notifier
	gateway  *repositories.Gateway
	cache    *repositories.CourseCache
	proc     *pipeline.Processor
	closers  []func() error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config   *shared.Config
	Logger   *log.Logger
	Output   io.Writer
	DB       *sql.DB           // opened from Config.Database when nil
	Notifier pipeline.Notifier // built from Config.Events when nil
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:   opts.Config,
		logger:   opts.Logger,
		output:   opts.Output,
		db:       opts.DB,
		notifier: opts.Notifier,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, courseCommand, lessonCommand, seedCommand, cacheCommand, eventsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) dialect() shared.Dialect {
	driver := r.config.Database.Driver
	if driver == "" {
		driver = shared.DriverSQLite
	}
	return shared.Dialect{Driver: driver}
}

// open connects the database and builds the processor. Calling it again is a no-op.
func (r *Runner) open(ctx context.Context) error {
	if r.proc != nil {
		return nil
	}

	if r.db == nil {
		cfg := r.config.Database
		db, err := shared.NewDatabase(cfg.Driver, cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
		r.db = db
		r.closers = append(r.closers, db.Close)
	}
	r.gateway = repositories.NewGateway(r.db, r.dialect())

	var cache handlers.OutlineCache
	if cc := r.config.Cache; cc.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cc.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			r.logger.Warn("course cache unavailable, continuing without it", "addr", cc.RedisAddr, "error", err)
			_ = rdb.Close()
		} else {
			r.cache = repositories.NewCourseCache(rdb, cc.Expiry(), r.logger)
			r.closers = append(r.closers, rdb.Close)
			cache = r.cache
		}
	}

	if r.notifier == nil {
		notifier, closeFn, err := events.New(r.config.Events, r.logger)
		if err != nil {
			return err
		}
		r.notifier = notifier
		r.closers = append(r.closers, closeFn)
	}

	reg := pipeline.NewRegistry()
	handlers.Register(reg, handlers.NewEnv(r.gateway, cache, r.logger))
	r.proc = pipeline.NewProcessor(reg, r.notifier, r.logger)
	return nil
}

// Close releases everything [Runner.open] acquired, most recent first.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// dispatch runs one operation locally and prints its envelope.
//
// With --trace every completed phase is logged once the operation returns.
func (r *Runner) dispatch(ctx context.Context, cmd *cli.Command, name string, req *pipeline.Request) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	var updates chan pipeline.PhaseUpdate
	if cmd.Bool("trace") {
		updates = make(chan pipeline.PhaseUpdate, 3)
		r.proc.Trace(updates)
	}

	resp := r.proc.Dispatch(ctx, name, req)

	if updates != nil {
		r.proc.Trace(nil)
		close(updates)
		for u := range updates {
			r.logger.Info(formatter.Trace(u))
		}
	}

	if err := r.writeResponse(cmd, resp); err != nil {
		return err
	}
	if resp.Kind == pipeline.KindInternalError {
		return fmt.Errorf("%s: %s", name, resp.Reason)
	}
	return nil
}

func (r *Runner) writeResponse(cmd *cli.Command, resp pipeline.Response) error {
	if cmd.Bool("json") || cmd.Bool("pretty") {
		return r.writeJSON(formatter.NewEnvelope(resp), cmd.Bool("pretty"))
	}
	return r.writePlain("%s", formatter.Text(resp))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
