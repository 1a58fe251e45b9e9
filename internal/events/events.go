// package events delivers post-commit event descriptors to downstream consumers.
//
// Every notifier implements [pipeline.Notifier]. Delivery is best effort: the processor logs
// a failed notification and the committed operation stands.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/shared"
)

// LogNotifier writes every event to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, ev pipeline.Event) error {
	n.logger.Info("event", "kind", ev.Kind, "course_id", ev.CourseID, "lesson_id", ev.LessonID, "user_id", ev.UserID, "at", ev.At)
	return nil
}

// ChannelNotifier forwards events to an in-process channel without blocking.
//
// Events are dropped when the channel is full.
type ChannelNotifier struct {
	ch chan<- pipeline.Event
}

// NewChannelNotifier creates a new ChannelNotifier sending on ch
func NewChannelNotifier(ch chan<- pipeline.Event) *ChannelNotifier {
	return &ChannelNotifier{ch: ch}
}

func (n *ChannelNotifier) Notify(ctx context.Context, ev pipeline.Event) error {
	if n.ch == nil {
		return nil
	}
	select {
	case n.ch <- ev:
	default:
	}
	return nil
}

// Multi fans an event out to several notifiers and joins their errors.
type Multi []pipeline.Notifier

func (m Multi) Notify(ctx context.Context, ev pipeline.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the notifier selected by cfg. The returned close function releases any connection.
func New(cfg shared.EventsConfig, logger *log.Logger) (pipeline.Notifier, func() error, error) {
	logNotifier := NewLogNotifier(logger)
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "log":
		return logNotifier, noop, nil
	case "redis":
		rn, err := NewRedisNotifier(cfg.RedisAddr, cfg.Channel)
		if err != nil {
			return nil, noop, err
		}
		return Multi{logNotifier, rn}, rn.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %s", shared.ErrUnknownChannel, cfg.Driver)
	}
}
