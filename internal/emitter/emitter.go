// Package emitter publishes run outputs to the orchestration environment.
package emitter

import (
	"context"
)

// Output is a single key=value result handed back to the caller
type Output struct {
	Key   string
	Value string
}

// Emitter publishes outputs to a backend.
type Emitter interface {
	// Emit publishes outputs in order.
	Emit(ctx context.Context, outputs ...Output) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, outputs ...Output) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, outputs...); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
