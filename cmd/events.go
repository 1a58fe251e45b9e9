package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curricula/internal/events"
	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/shared"
)

// EventsListen prints every event published on the configured Redis channel until interrupted.
func (r *Runner) EventsListen(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Events
	if cfg.Driver != "redis" {
		return fmt.Errorf("%w: events.driver must be \"redis\" to listen", shared.ErrMissingConfig)
	}

	rn, err := events.NewRedisNotifier(cfg.RedisAddr, cfg.Channel)
	if err != nil {
		return err
	}
	defer rn.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pretty := cmd.Bool("pretty")
	onEvent := func(ev pipeline.Event) {
		if cmd.Bool("json") || pretty {
			r.writeJSON(ev, pretty)
			return
		}
		r.writePlain("%s %-16s lesson=%s course=%s user=%s\n",
			ev.At.Format("15:04:05"), ev.Kind, ev.LessonID, ev.CourseID, ev.UserID)
	}
	onError := func(err error) {
		r.logger.Warn("skipping event", "error", err)
	}

	if err := rn.Subscribe(ctx, onEvent, onError); err != nil {
		return err
	}
	r.logger.Info("listening for events", "channel", rn.Channel())

	<-ctx.Done()
	return nil
}
