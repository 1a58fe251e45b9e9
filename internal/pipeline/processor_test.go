package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

type stubState struct {
	token string
}

// stubHandler records the phases it was asked to run.
type stubHandler struct {
	sanity   Outcome
	validate Outcome
	execute  func(state stubState) Outcome
	readOnly bool
	panicAt  string
	calls    []Phase
}

func (h *stubHandler) CheckSanity(req *Request) Outcome {
	h.calls = append(h.calls, Sanity)
	if h.panicAt == Sanity.String() {
		panic("sanity exploded")
	}
	return h.sanity
}

func (h *stubHandler) Validate(ctx context.Context, req *Request) (stubState, Outcome) {
	h.calls = append(h.calls, Validate)
	return stubState{token: "from-validate"}, h.validate
}

func (h *stubHandler) Execute(ctx context.Context, req *Request, state stubState) Outcome {
	h.calls = append(h.calls, Execute)
	if h.panicAt == Execute.String() {
		panic("execute exploded")
	}
	if h.execute != nil {
		return h.execute(state)
	}
	return NoContent(&Event{Kind: "stub"})
}

func (h *stubHandler) ReadOnly() bool { return h.readOnly }

type recordingNotifier struct {
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, ev Event) error {
	n.events = append(n.events, ev)
	return n.err
}

func newTestProcessor(n Notifier) *Processor {
	return NewProcessor(NewRegistry(), n, log.New(io.Discard))
}

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	req := &Request{CourseID: "c-1", LessonID: "l-1", UserID: "u-1"}

	t.Run("runs phases in order and threads state", func(t *testing.T) {
		var seen string
		h := &stubHandler{
			sanity:   Next(),
			validate: Next(),
			execute: func(s stubState) Outcome {
				seen = s.token
				return NoContent(&Event{Kind: "stub"})
			},
		}
		n := &recordingNotifier{}

		resp := newTestProcessor(n).Process(ctx, "stub", Bind[stubState](h), req)
		if resp.Kind != KindNoContent {
			t.Fatalf("expected no content, got %s", resp.Kind)
		}

		if len(h.calls) != 3 || h.calls[0] != Sanity || h.calls[1] != Validate || h.calls[2] != Execute {
			t.Errorf("unexpected phase order %v", h.calls)
		}
		if seen != "from-validate" {
			t.Errorf("execute saw state %q", seen)
		}

		if len(n.events) != 1 {
			t.Fatalf("expected one event, got %d", len(n.events))
		}
		if n.events[0].UserID != "u-1" || n.events[0].At.IsZero() {
			t.Errorf("event not completed from request: %+v", n.events[0])
		}
	})

	t.Run("short circuits", func(t *testing.T) {
		tc := []struct {
			name     string
			sanity   Outcome
			validate Outcome
			want     Kind
			calls    int
		}{
			{name: "sanity failure", sanity: InvalidRequest("bad"), validate: Next(), want: KindInvalidRequest, calls: 1},
			{name: "sanity validation error", sanity: ValidationError(map[string]string{"f": "r"}), validate: Next(), want: KindValidationError, calls: 1},
			{name: "validate forbidden", sanity: Next(), validate: Forbidden(), want: KindForbidden, calls: 2},
			{name: "validate not found", sanity: Next(), validate: NotFound("gone"), want: KindNotFound, calls: 2},
			{name: "sanity success ends early", sanity: OK("cached"), validate: Next(), want: KindOK, calls: 1},
			{name: "zero outcome", sanity: Outcome{}, validate: Next(), want: KindInternalError, calls: 1},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				h := &stubHandler{sanity: tt.sanity, validate: tt.validate}
				n := &recordingNotifier{}

				resp := newTestProcessor(n).Process(ctx, "stub", Bind[stubState](h), req)
				if resp.Kind != tt.want {
					t.Errorf("expected %s, got %s", tt.want, resp.Kind)
				}
				if len(h.calls) != tt.calls {
					t.Errorf("expected %d phases, ran %v", tt.calls, h.calls)
				}
				if len(n.events) != 0 {
					t.Error("no event may be emitted without a successful execute")
				}
			})
		}
	})

	t.Run("execute must finish", func(t *testing.T) {
		h := &stubHandler{sanity: Next(), validate: Next(), execute: func(stubState) Outcome { return Next() }}

		resp := newTestProcessor(nil).Process(ctx, "stub", Bind[stubState](h), req)
		if resp.Kind != KindInternalError {
			t.Errorf("expected internal error, got %s", resp.Kind)
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		for _, phase := range []Phase{Sanity, Execute} {
			t.Run(phase.String(), func(t *testing.T) {
				h := &stubHandler{sanity: Next(), validate: Next(), panicAt: phase.String()}
				n := &recordingNotifier{}

				resp := newTestProcessor(n).Process(ctx, "stub", Bind[stubState](h), req)
				if resp.Kind != KindInternalError {
					t.Errorf("expected internal error, got %s", resp.Kind)
				}
				if len(n.events) != 0 {
					t.Error("no event after a panic")
				}
			})
		}
	})

	t.Run("notification failure keeps the outcome", func(t *testing.T) {
		h := &stubHandler{sanity: Next(), validate: Next()}
		n := &recordingNotifier{err: errors.New("broker down")}

		resp := newTestProcessor(n).Process(ctx, "stub", Bind[stubState](h), req)
		if resp.Kind != KindNoContent {
			t.Errorf("expected no content, got %s", resp.Kind)
		}
		if len(n.events) != 1 {
			t.Errorf("expected a notification attempt, got %d", len(n.events))
		}
	})

	t.Run("read only skips notification", func(t *testing.T) {
		h := &stubHandler{sanity: Next(), validate: Next(), readOnly: true}
		n := &recordingNotifier{}

		newTestProcessor(n).Process(ctx, "stub", Bind[stubState](h), req)
		if len(n.events) != 0 {
			t.Error("read-only operations never notify")
		}
	})

	t.Run("trace", func(t *testing.T) {
		h := &stubHandler{sanity: Next(), validate: Forbidden()}
		ch := make(chan PhaseUpdate, 1)

		p := newTestProcessor(nil)
		p.Trace(ch)
		p.Process(ctx, "stub", Bind[stubState](h), req)

		update := <-ch
		if update.Phase != Sanity || update.Status != Continue || update.Operation != "stub" {
			t.Errorf("unexpected first update %+v", update)
		}
		select {
		case extra := <-ch:
			t.Errorf("full channel should drop updates, got %+v", extra)
		default:
		}
	})

	t.Run("state is per request", func(t *testing.T) {
		var got stubState
		h := &stubHandler{validate: Next(), execute: func(s stubState) Outcome {
			got = s
			return NoContent(nil)
		}}
		op := Bind[stubState](h)
		first, second := op.Start(), op.Start()

		first.Validate(ctx, req)
		second.Execute(ctx, req)
		if got.token != "" {
			t.Errorf("fresh steps must start from zero state, got %q", got.token)
		}

		first.Execute(ctx, req)
		if got.token != "from-validate" {
			t.Errorf("expected state from validate, got %q", got.token)
		}
	})
}

func TestTraceWhileDispatching(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.Register(OpMoveLesson, func() Operation {
		return Bind[stubState](&stubHandler{sanity: Next(), validate: Next()})
	})
	p := NewProcessor(reg, nil, log.New(io.Discard))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if resp := p.Dispatch(ctx, OpMoveLesson, &Request{UserID: "u-1"}); resp.Kind != KindNoContent {
					t.Errorf("expected no content, got %s", resp.Kind)
					return
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		ch := make(chan PhaseUpdate, 4)
		p.Trace(ch)
		p.Trace(nil)
		close(ch)
		for range ch {
		}
	}
	wg.Wait()
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.Register(OpFetchCourse, func() Operation {
		return Bind[stubState](&stubHandler{sanity: Next(), validate: Next(), readOnly: true,
			execute: func(stubState) Outcome { return OK(map[string]string{"id": "c-1"}) }})
	})

	p := NewProcessor(reg, nil, log.New(io.Discard))

	if resp := p.Dispatch(ctx, OpFetchCourse, &Request{CourseID: "c-1"}); resp.Kind != KindOK {
		t.Errorf("expected ok, got %s", resp.Kind)
	}

	if resp := p.Dispatch(ctx, "course.archive", &Request{}); resp.Kind != KindInternalError {
		t.Errorf("expected internal error for unknown operation, got %s", resp.Kind)
	}

	if _, err := reg.Lookup("course.archive"); !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("expected ErrUnknownOperation, got %v", err)
	}

	if names := reg.Names(); len(names) != 1 || names[0] != OpFetchCourse {
		t.Errorf("unexpected names %v", names)
	}
}
