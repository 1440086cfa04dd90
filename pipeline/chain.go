// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Outcome summarizes how a chain execution ended.
type Outcome int

const (
	// Consumed means every processor ran and proceeded.
	Consumed Outcome = iota + 1

	// Halted means a processor stopped the chain or failed.
	Halted
)

// String implements the [fmt.Stringer] interface.
func (o Outcome) String() string {
	switch o {
	case Consumed:
		return "consumed"
	case Halted:
		return "halted"
	default:
		return "pending"
	}
}

// Processing is the runnable result of [Assembly.Create]. It is immutable
// and can be shared by any number of chain executions.
type Processing[C any] struct {
	name  string
	nodes []node[C]
}

// Name returns the name of the assembly this processing was created from.
func (p *Processing[C]) Name() string {
	return p.name
}

// Processors returns the processor names in execution order.
func (p *Processing[C]) Processors() []string {
	names := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		names[i] = n.name
	}
	return names
}

// Process binds the contexts c to a new Chain without running it.
func (p *Processing[C]) Process(c C) *Chain[C] {
	return &Chain[C]{processing: p, contexts: c}
}

// Execute runs a new chain over c to completion.
func (p *Processing[C]) Execute(ctx context.Context, c C) (Outcome, error) {
	return p.Process(c).DoAll(ctx)
}

// Chain is the execution cursor of a Processing over one set of contexts.
// A Chain is owned by a single execution and must not be shared.
type Chain[C any] struct {
	processing *Processing[C]
	contexts   C
	next       int
	running    bool
	outcome    Outcome
	err        error

	finalizers []func(Outcome, error)
}

// Contexts returns the contexts bound to the chain.
func (ch *Chain[C]) Contexts() C {
	return ch.contexts
}

// Outcome returns how the last drive of the chain ended, zero if it never ran.
func (ch *Chain[C]) Outcome() Outcome {
	return ch.outcome
}

// Err returns the error of the processor which failed the chain, if any.
func (ch *Chain[C]) Err() error {
	return ch.err
}

// Done reports if there is no processor left to run.
func (ch *Chain[C]) Done() bool {
	return ch.next >= len(ch.processing.nodes)
}

// OnFinalize registers f to be called when the current drive of the chain
// returns, whether it was consumed, halted or failed.
func (ch *Chain[C]) OnFinalize(f func(Outcome, error)) {
	ch.finalizers = append(ch.finalizers, f)
}

// DoAll drives the chain from its current position until it is consumed,
// a processor stops it or a processor fails.
func (ch *Chain[C]) DoAll(ctx context.Context) (Outcome, error) {
	if ch.running {
		return Halted, ErrChainRunning
	}
	if ch.err != nil {
		return Halted, Develf("cannot continue the failed chain of %q: %v", ch.processing.name, ch.err)
	}
	return ch.drive(ctx, "Chain.DoAll")
}

// Resume continues a halted chain starting with the processor following
// the one which stopped it. A chain halted by a failing processor can not
// be resumed.
func (ch *Chain[C]) Resume(ctx context.Context) (Outcome, error) {
	if ch.running {
		return Halted, ErrChainRunning
	}
	if ch.err != nil {
		return Halted, Develf("cannot resume the failed chain of %q: %v", ch.processing.name, ch.err)
	}
	if ch.outcome != Halted {
		return ch.outcome, Develf("cannot resume a %s chain of %q", ch.outcome, ch.processing.name)
	}
	return ch.drive(ctx, "Chain.Resume")
}

func (ch *Chain[C]) drive(ctx context.Context, op string) (outcome Outcome, err error) {
	spanCtx, span := otel.Tracer("pipeline").Start(ctx, op)
	span.SetAttributes(attribute.String("pipeline.processing", ch.processing.name))
	defer span.End()

	ch.running = true
	defer func() {
		ch.running = false
		ch.outcome = outcome
		ch.err = err
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		ch.finalize(outcome, err)
	}()

	for ch.next < len(ch.processing.nodes) {
		n := ch.processing.nodes[ch.next]
		ch.next++

		next, err := invoke(spanCtx, n.proc, ch)
		if err != nil {
			return Halted, ProcessError{
				Processing: ch.processing.name,
				Processor:  n.name,
				Cause:      err,
			}
		}
		if next == Stop {
			return Halted, nil
		}
	}
	return Consumed, nil
}

func (ch *Chain[C]) finalize(outcome Outcome, err error) {
	fs := ch.finalizers
	ch.finalizers = nil
	for _, f := range fs {
		f(outcome, err)
	}
}

func invoke[C any](ctx context.Context, p Processor[C], ch *Chain[C]) (next Next, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		next, err = Stop, PanicError{Value: r}
	}()
	return p.Process(ctx, ch, ch.contexts)
}
