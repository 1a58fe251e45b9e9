package pipeline

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Notifier receives the event of every successful mutation after it has committed.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Processor drives operations through Sanity, Validate and Execute.
type Processor struct {
	registry *Registry
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time

	traceMu sync.RWMutex
	trace   chan<- PhaseUpdate
}

// NewProcessor creates a new Processor. notifier may be nil.
func NewProcessor(registry *Registry, notifier Notifier, logger *log.Logger) *Processor {
	return &Processor{registry: registry, notifier: notifier, logger: logger, now: time.Now}
}

// Trace sends a [PhaseUpdate] on ch after every phase. Sends never block. A nil ch turns tracing off.
//
// Once Trace returns, no send reaches the previous channel, so the caller may close it.
func (p *Processor) Trace(ch chan<- PhaseUpdate) {
	p.traceMu.Lock()
	defer p.traceMu.Unlock()
	p.trace = ch
}

// Dispatch looks up the named operation and processes req with it.
func (p *Processor) Dispatch(ctx context.Context, name string, req *Request) Response {
	op, err := p.registry.Lookup(name)
	if err != nil {
		p.logger.Error("unknown operation", "operation", name)
		return InternalError(err.Error()).Response
	}
	return p.Process(ctx, name, op, req)
}

// Process runs op for req and returns its response.
//
// A panic anywhere in the handler becomes an internal error. Events of successful mutations are
// handed to the notifier after Execute returns; notification failures are logged only.
func (p *Processor) Process(ctx context.Context, name string, op Operation, req *Request) (resp Response) {
	logger := p.logger.With("operation", name, "user_id", req.UserID)
	phase := Sanity

	defer func() {
		if r := recover(); r != nil {
			logger.Error("operation panicked", "phase", phase, "panic", r, "stack", string(debug.Stack()))
			resp = InternalError("Internal error").Response
		}
	}()

	steps := op.Start()

	out := p.run(name, phase, func() Outcome { return steps.Sanity(req) })
	if out.Status != Continue {
		return p.stop(logger, phase, out)
	}

	phase = Validate
	out = p.run(name, phase, func() Outcome { return steps.Validate(ctx, req) })
	if out.Status != Continue {
		return p.stop(logger, phase, out)
	}

	phase = Execute
	out = p.run(name, phase, func() Outcome { return steps.Execute(ctx, req) })
	switch out.Status {
	case Successful:
	case Failed:
		return p.stop(logger, phase, out)
	default:
		logger.Error("execute did not finish", "status", out.Status)
		return InternalError("Internal error").Response
	}

	if op.ReadOnly() {
		return out.Response
	}

	logger.Info("operation completed", "course_id", req.CourseID, "lesson_id", req.LessonID)
	if ev := out.Response.Event; ev != nil {
		p.notify(ctx, logger, *ev, req)
	}
	return out.Response
}

func (p *Processor) run(name string, phase Phase, fn func() Outcome) Outcome {
	start := p.now()
	out := fn()
	p.sendTrace(PhaseUpdate{Operation: name, Phase: phase, Status: out.Status, Elapsed: p.now().Sub(start)})
	return out
}

func (p *Processor) stop(logger *log.Logger, phase Phase, out Outcome) Response {
	if out.Status == NotStarted {
		logger.Error("phase returned without a status", "phase", phase)
		return InternalError("Internal error").Response
	}

	r := out.Response
	switch {
	case out.Status == Successful:
		logger.Debug("finished early", "phase", phase, "kind", r.Kind)
	case r.Kind == KindInternalError:
		logger.Error("operation failed", "phase", phase, "reason", r.Reason)
	default:
		logger.Warn("request rejected", "phase", phase, "kind", r.Kind, "reason", r.Reason, "errors", r.Errors)
	}
	return r
}

func (p *Processor) notify(ctx context.Context, logger *log.Logger, ev Event, req *Request) {
	if p.notifier == nil {
		return
	}
	if ev.UserID == "" {
		ev.UserID = req.UserID
	}
	if ev.At.IsZero() {
		ev.At = p.now()
	}

	if err := p.notifier.Notify(ctx, ev); err != nil {
		logger.Warn("event notification failed", "event", ev.Kind, "error", err)
	}
}

// sendTrace sends an update without blocking. Updates are dropped when nobody keeps up.
func (p *Processor) sendTrace(update PhaseUpdate) {
	p.traceMu.RLock()
	defer p.traceMu.RUnlock()
	if p.trace == nil {
		return
	}
	select {
	case p.trace <- update:
	default:
	}
}
