package async

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/teranos/AMS/errors"
)

// JobHandler executes one kind of job. The worker pool routes jobs by
// Job.HandlerName and never looks inside Payload.
type JobHandler interface {
	Execute(ctx context.Context, job *Job) error
	Name() string // routing key, e.g. "ams.create-digital-instantiation"
}

// HandlerFunc adapts a function into a JobHandler
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Execute(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }
func (h HandlerFunc) Name() string                                { return h.HandlerName }

// HandlerRegistry maps handler names to handlers. Safe for concurrent use.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]JobHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]JobHandler)}
}

// Register adds handler under its name. Registering a name twice is a
// wiring bug and panics.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, dup := r.handlers[name]; dup {
		panic(fmt.Sprintf("handler already registered for name: %s", name))
	}
	r.handlers[name] = handler
}

// Get returns the handler for name, or nil
func (r *HandlerRegistry) Get(name string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Has reports whether name is registered
func (r *HandlerRegistry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns the registered names, sorted
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs job on the handler registered for its HandlerName
func (r *HandlerRegistry) Dispatch(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return errors.NewInvalidRequestError("job %s missing handler_name", job.ID)
	}
	handler := r.Get(job.HandlerName)
	if handler == nil {
		return errors.NewNotFoundError("no handler registered for handler name: %s", job.HandlerName)
	}
	return handler.Execute(ctx, job)
}
