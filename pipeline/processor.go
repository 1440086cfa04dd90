// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import "context"

// Next tells the chain what to do once a processor returns.
type Next int

const (
	// Proceed advances the chain to the next processor.
	Proceed Next = iota

	// Stop halts the chain. No downstream processor is executed.
	Stop
)

// Processor is a single stage of a processing over the contexts C.
type Processor[C any] interface {
	Process(ctx context.Context, ch *Chain[C], c C) (Next, error)
}

// Func is a func variant of the [Processor] interface.
type Func[C any] func(context.Context, *Chain[C], C) (Next, error)

// Process implements the [Processor] interface.
func (f Func[C]) Process(ctx context.Context, ch *Chain[C], c C) (Next, error) {
	return f(ctx, ch, c)
}

// Contract declares how a processor uses context fields. Field names are
// formed as "<context>.<field>" e.g. "request.headers".
type Contract struct {
	// Requires lists fields which must be populated before the processor runs.
	Requires []string

	// Optional lists fields the processor reads if available.
	Optional []string

	// Defines lists fields the processor may populate.
	Defines []string
}

// Contracter is implemented by processors that declare a [Contract].
type Contracter interface {
	Contract() Contract
}

type declared[C any] struct {
	Processor[C]
	contract Contract
}

func (d declared[C]) Contract() Contract {
	return d.contract
}

// Declare attaches contract to p.
func Declare[C any](contract Contract, p Processor[C]) Processor[C] {
	return declared[C]{Processor: p, contract: contract}
}

func contractOf[C any](p Processor[C]) Contract {
	c, ok := p.(Contracter)
	if !ok {
		return Contract{}
	}
	return c.Contract()
}
