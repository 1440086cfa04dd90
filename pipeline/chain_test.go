// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	visited []string
}

func visit(name string, next Next) Func[*journal] {
	return func(_ context.Context, _ *Chain[*journal], t *journal) (Next, error) {
		t.visited = append(t.visited, name)
		return next, nil
	}
}

func mustCreate(t *testing.T, a *Assembly[*journal], provided ...string) *Processing[*journal] {
	t.Helper()

	p, _, err := a.Create(provided...)
	require.Nil(t, err)
	return p
}

func TestChain_DoAll(t *testing.T) {
	t.Run("will run every processor in order", func(t *testing.T) {
		p := mustCreate(t, NewAssembly[*journal]("all").
			Add("a", visit("a", Proceed)).
			Add("b", visit("b", Proceed)).
			Add("c", visit("c", Proceed)))

		tr := &journal{}
		out, err := p.Execute(context.Background(), tr)
		require.Nil(t, err)
		assert.Equal(t, Consumed, out)
		assert.Equal(t, []string{"a", "b", "c"}, tr.visited)
	})

	t.Run("will halt the chain", func(t *testing.T) {
		t.Run("if a processor stops it and keep earlier side effects", func(t *testing.T) {
			p := mustCreate(t, NewAssembly[*journal]("halt").
				Add("a", visit("a", Proceed)).
				Add("b", visit("b", Stop)).
				Add("c", visit("c", Proceed)))

			tr := &journal{}
			out, err := p.Execute(context.Background(), tr)
			require.Nil(t, err)
			assert.Equal(t, Halted, out)
			assert.Equal(t, []string{"a", "b"}, tr.visited)
		})

		t.Run("if a processor fails", func(t *testing.T) {
			failure := errors.New("failed")
			p := mustCreate(t, NewAssembly[*journal]("fail").
				Add("a", Func[*journal](func(context.Context, *Chain[*journal], *journal) (Next, error) {
					return Proceed, failure
				})).
				Add("b", visit("b", Proceed)))

			tr := &journal{}
			out, err := p.Execute(context.Background(), tr)
			assert.Equal(t, Halted, out)
			assert.ErrorIs(t, err, failure)

			var perr ProcessError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "a", perr.Processor)
			assert.Equal(t, "fail", perr.Processing)
			assert.Empty(t, tr.visited)
		})

		t.Run("if a processor panics", func(t *testing.T) {
			p := mustCreate(t, NewAssembly[*journal]("panic").
				Add("a", Func[*journal](func(context.Context, *Chain[*journal], *journal) (Next, error) {
					panic("boom")
				})))

			out, err := p.Execute(context.Background(), &journal{})
			assert.Equal(t, Halted, out)

			var perr PanicError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "boom", perr.Value)
		})
	})

	t.Run("will refuse to run", func(t *testing.T) {
		t.Run("if the chain is already running", func(t *testing.T) {
			var inner error
			p := mustCreate(t, NewAssembly[*journal]("reentrant").
				Add("a", Func[*journal](func(ctx context.Context, ch *Chain[*journal], _ *journal) (Next, error) {
					_, inner = ch.DoAll(ctx)
					return Proceed, nil
				})))

			_, err := p.Execute(context.Background(), &journal{})
			require.Nil(t, err)
			assert.ErrorIs(t, inner, ErrChainRunning)
		})
	})
}

func TestChain_Resume(t *testing.T) {
	t.Run("will continue after the processor which stopped", func(t *testing.T) {
		p := mustCreate(t, NewAssembly[*journal]("resume").
			Add("a", visit("a", Stop)).
			Add("b", visit("b", Proceed)))

		tr := &journal{}
		ch := p.Process(tr)
		out, err := ch.DoAll(context.Background())
		require.Nil(t, err)
		assert.Equal(t, Halted, out)
		assert.False(t, ch.Done())

		out, err = ch.Resume(context.Background())
		require.Nil(t, err)
		assert.Equal(t, Consumed, out)
		assert.True(t, ch.Done())
		assert.Equal(t, []string{"a", "b"}, tr.visited)
	})

	t.Run("will return a devel error", func(t *testing.T) {
		t.Run("if the chain was consumed", func(t *testing.T) {
			p := mustCreate(t, NewAssembly[*journal]("consumed").Add("a", visit("a", Proceed)))

			ch := p.Process(&journal{})
			_, err := ch.DoAll(context.Background())
			require.Nil(t, err)

			_, err = ch.Resume(context.Background())
			_, ok := IsDevel(err)
			assert.True(t, ok)
		})

		t.Run("if a processor failed the chain", func(t *testing.T) {
			failing := Func[*journal](func(context.Context, *Chain[*journal], *journal) (Next, error) {
				return Stop, errors.New("unreachable store")
			})
			p := mustCreate(t, NewAssembly[*journal]("failed").
				Add("a", failing).
				Add("b", visit("b", Proceed)))

			tr := &journal{}
			ch := p.Process(tr)
			out, err := ch.DoAll(context.Background())
			assert.Equal(t, Halted, out)

			var perr ProcessError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, err, ch.Err())

			_, err = ch.Resume(context.Background())
			_, ok := IsDevel(err)
			assert.True(t, ok)

			_, err = ch.DoAll(context.Background())
			_, ok = IsDevel(err)
			assert.True(t, ok)
			assert.Empty(t, tr.visited)
		})
	})
}

func TestChain_OnFinalize(t *testing.T) {
	t.Run("will call finalizers once the chain stops running", func(t *testing.T) {
		var outcomes []Outcome
		p := mustCreate(t, NewAssembly[*journal]("finalize").
			Add("a", Func[*journal](func(_ context.Context, ch *Chain[*journal], _ *journal) (Next, error) {
				ch.OnFinalize(func(o Outcome, err error) {
					outcomes = append(outcomes, o)
				})
				return Stop, nil
			})))

		ch := p.Process(&journal{})
		_, err := ch.DoAll(context.Background())
		require.Nil(t, err)
		assert.Equal(t, []Outcome{Halted}, outcomes)
		assert.Equal(t, Halted, ch.Outcome())
	})
}

func TestChain_branching(t *testing.T) {
	t.Run("will surface sub chain failures to the parent", func(t *testing.T) {
		failure := errors.New("sub failed")
		sub := mustCreate(t, NewAssembly[*journal]("sub").
			Add("x", Func[*journal](func(context.Context, *Chain[*journal], *journal) (Next, error) {
				return Stop, failure
			})))

		parent := mustCreate(t, NewAssembly[*journal]("parent").
			Add("branch", Func[*journal](func(ctx context.Context, _ *Chain[*journal], _ *journal) (Next, error) {
				_, err := sub.Execute(ctx, &journal{})
				return Proceed, err
			})).
			Add("after", visit("after", Proceed)))

		tr := &journal{}
		_, err := parent.Execute(context.Background(), tr)
		assert.ErrorIs(t, err, failure)
		assert.Empty(t, tr.visited)
	})
}
