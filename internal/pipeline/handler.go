package pipeline

import "context"

// Handler is one catalog operation. S is the state Validate passes to Execute.
type Handler[S any] interface {
	// CheckSanity inspects the request shape only. It must not touch storage.
	CheckSanity(req *Request) Outcome

	// Validate performs the read-only checks and returns the state Execute needs.
	Validate(ctx context.Context, req *Request) (S, Outcome)

	// Execute performs the operation and returns a terminal outcome.
	Execute(ctx context.Context, req *Request, state S) Outcome

	// ReadOnly reports whether the operation leaves storage untouched.
	ReadOnly() bool
}

// Operation is a [Handler] with its state type erased.
type Operation interface {
	ReadOnly() bool
	// Start returns the phase functions for a single request. State never outlives them.
	Start() Steps
}

// Steps holds the three phases of one run.
type Steps struct {
	Sanity   func(req *Request) Outcome
	Validate func(ctx context.Context, req *Request) Outcome
	Execute  func(ctx context.Context, req *Request) Outcome
}

type binding[S any] struct {
	h Handler[S]
}

// Bind adapts h to an [Operation].
func Bind[S any](h Handler[S]) Operation {
	return binding[S]{h: h}
}

func (b binding[S]) ReadOnly() bool { return b.h.ReadOnly() }

func (b binding[S]) Start() Steps {
	var state S
	return Steps{
		Sanity: b.h.CheckSanity,
		Validate: func(ctx context.Context, req *Request) Outcome {
			s, out := b.h.Validate(ctx, req)
			state = s
			return out
		},
		Execute: func(ctx context.Context, req *Request) Outcome {
			return b.h.Execute(ctx, req, state)
		},
	}
}
