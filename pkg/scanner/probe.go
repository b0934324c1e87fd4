package scanner

import (
	"context"
)

// Prober probes a single target of type T (a port number or a hostname)
// Probe must always return within a bounded time and never panic on network
// failure: failures are outcomes, not errors.
type Prober[T any] interface {
	// Family returns the probe family ("ports" or "dns")
	Family() Family

	// Probe evaluates one target
	Probe(ctx context.Context, target T) Outcome
}

// ProberFunc is a function adapter for the Prober interface
// Allows using simple functions as probers without creating a struct
type ProberFunc[T any] struct {
	family  Family
	probeFn func(ctx context.Context, target T) Outcome
}

// NewProberFunc creates a Prober from a function
func NewProberFunc[T any](family Family, fn func(ctx context.Context, target T) Outcome) Prober[T] {
	return &ProberFunc[T]{family: family, probeFn: fn}
}

func (p *ProberFunc[T]) Family() Family {
	return p.family
}

func (p *ProberFunc[T]) Probe(ctx context.Context, target T) Outcome {
	return p.probeFn(ctx, target)
}
