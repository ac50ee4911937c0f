package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type and must be JSON-serializable.
type Definition[T any] struct {
	// Type is the job type tag this definition handles.
	Type string

	// Handler processes one decoded payload.
	Handler func(ctx context.Context, payload T) error

	// Opts are the defaults applied when enqueuing this definition.
	Opts []Option
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](jobType string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	return &Definition[T]{
		Type:    jobType,
		Handler: handler,
		Opts:    opts,
	}
}
