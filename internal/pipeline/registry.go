package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Operation names
const (
	OpFetchCourse   = "course.fetch"
	OpMoveLesson    = "lesson.move"
	OpDeleteLesson  = "lesson.delete"
	OpReorderLesson = "lesson.collections.reorder"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Factory builds the operation for one request.
type Factory func() Operation

// Registry maps operation names to factories.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Factory
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = f
}

// Lookup builds the operation registered under name.
func (r *Registry) Lookup(name string) (Operation, error) {
	r.mu.RLock()
	f, ok := r.ops[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return f(), nil
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
