package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/curricula/internal/pipeline"
	"github.com/desertthunder/curricula/internal/shared"
)

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(ctx context.Context, ev pipeline.Event) error { return f.err }

func testEvent() pipeline.Event {
	return pipeline.Event{Kind: "lesson.move", LessonID: "l-1", CourseID: "c-1", UserID: "u-1", At: time.Now()}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(log.New(&buf))

	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "lesson.move") || !strings.Contains(out, "l-1") {
		t.Errorf("expected event fields in log output, got %q", out)
	}
}

func TestChannelNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers", func(t *testing.T) {
		ch := make(chan pipeline.Event, 1)
		if err := NewChannelNotifier(ch).Notify(ctx, testEvent()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev := <-ch; ev.LessonID != "l-1" {
			t.Errorf("unexpected event %+v", ev)
		}
	})

	t.Run("never blocks", func(t *testing.T) {
		ch := make(chan pipeline.Event)
		done := make(chan struct{})
		go func() {
			NewChannelNotifier(ch).Notify(ctx, testEvent())
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("notify blocked on a channel nobody reads")
		}
	})

	t.Run("nil channel", func(t *testing.T) {
		if err := NewChannelNotifier(nil).Notify(ctx, testEvent()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	ch := make(chan pipeline.Event, 1)
	boom := errors.New("boom")

	m := Multi{failingNotifier{err: boom}, nil, NewChannelNotifier(ch)}
	err := m.Notify(ctx, testEvent())
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}

	select {
	case <-ch:
	default:
		t.Error("later notifiers must still receive the event")
	}

	if err := (Multi{}).Notify(ctx, testEvent()); err != nil {
		t.Errorf("empty fan-out should succeed, got %v", err)
	}
}

func TestNew(t *testing.T) {
	logger := log.New(&bytes.Buffer{})

	tc := []struct {
		name    string
		cfg     shared.EventsConfig
		wantErr error
	}{
		{name: "default", cfg: shared.EventsConfig{}},
		{name: "log", cfg: shared.EventsConfig{Driver: "log"}},
		{name: "redis", cfg: shared.EventsConfig{Driver: "redis", RedisAddr: "127.0.0.1:6379"}},
		{name: "redis without address", cfg: shared.EventsConfig{Driver: "redis"}, wantErr: shared.ErrMissingConfig},
		{name: "unknown", cfg: shared.EventsConfig{Driver: "kafka"}, wantErr: shared.ErrUnknownChannel},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			n, closeFn, err := New(tt.cfg, logger)
			defer closeFn()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n == nil {
				t.Error("expected a notifier")
			}
		})
	}
}

func TestRedisNotifier(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing listens on port 1.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	n := NewRedisNotifierWithClient(rdb, "")
	defer n.Close()

	if n.Channel() != DefaultChannel {
		t.Errorf("expected default channel, got %s", n.Channel())
	}

	if err := n.Notify(ctx, testEvent()); err == nil {
		t.Error("expected publish to fail without a server")
	}

	if err := n.Subscribe(ctx, func(pipeline.Event) {}, nil); err == nil {
		t.Error("expected subscribe to fail without a server")
	}
}
