package server

import (
	"context"
	"errors"
	"fmt"
)

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Every rag.VectorStore and the instrumented embedder
// satisfy it directly.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	Ping(ctx context.Context) error

	// Name returns a short label used in readiness responses
	// (e.g. "postgres", "ollama").
	Name() string
}

// PingerFunc adapts a probe function to the Pinger interface, for
// dependencies such as a Redis client that have no Name of their own.
func PingerFunc(name string, ping func(context.Context) error) Pinger {
	return pingFunc{name: name, ping: ping}
}

type pingFunc struct {
	name string
	ping func(context.Context) error
}

func (p pingFunc) Name() string                   { return p.name }
func (p pingFunc) Ping(ctx context.Context) error { return p.ping(ctx) }

// MultiPinger aggregates Pingers and reports their combined readiness.
// `assistant ask` uses it as a pre-flight check before a query.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger from the provided list of Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping runs every probe and joins the failures, each prefixed with its
// dependency name.
func (m *MultiPinger) Ping(ctx context.Context) error {
	var errs []error
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }
