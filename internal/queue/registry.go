package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler processes a single job. A nil return completes the job; a
// plain error schedules a retry; an error wrapped with Permanent fails
// the job immediately.
type Handler func(ctx context.Context, j *Job) error

// Middleware wraps a Handler. Middlewares registered with Use apply to
// every handler in the registry, outermost first.
type Middleware func(Handler) Handler

// Registry maps job types to handlers.
type Registry struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	middlewares []Middleware
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(jobType string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

func (r *Registry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw...)
}

// Resolve returns the handler for jobType with the middleware chain
// applied. The first middleware passed to Use runs outermost.
func (r *Registry) Resolve(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[jobType]
	if !ok {
		return nil, false
	}
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h, true
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
