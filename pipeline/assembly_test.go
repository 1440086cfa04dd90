// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declare(name string, contract Contract) Processor[*journal] {
	return Declare[*journal](contract, visit(name, Proceed))
}

func TestAssembly_Create(t *testing.T) {
	t.Run("will flatten included assemblies in place", func(t *testing.T) {
		sub := NewAssembly[*journal]("sub").
			Add("x", visit("x", Proceed)).
			Add("y", visit("y", Proceed))

		p := mustCreate(t, NewAssembly[*journal]("main").
			Add("a", visit("a", Proceed)).
			Include(sub).
			Add("b", visit("b", Proceed)))

		assert.Equal(t, []string{"a", "x", "y", "b"}, p.Processors())
	})

	t.Run("will place processors relative to others", func(t *testing.T) {
		p := mustCreate(t, NewAssembly[*journal]("placed").
			Add("a", visit("a", Proceed)).
			Add("c", visit("c", Proceed)).
			Add("b", visit("b", Proceed), Before("c")).
			Add("d", visit("d", Proceed), After("c")))

		assert.Equal(t, []string{"a", "b", "c", "d"}, p.Processors())

		tr := &journal{}
		_, err := p.Execute(context.Background(), tr)
		require.Nil(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, tr.visited)
	})

	t.Run("will satisfy requirements", func(t *testing.T) {
		t.Run("from provided fields and earlier definitions", func(t *testing.T) {
			_, report, err := NewAssembly[*journal]("ok").
				Add("producer", declare("producer", Contract{
					Requires: []string{"request.uri"},
					Defines:  []string{"response.obj"},
				})).
				Add("consumer", declare("consumer", Contract{
					Requires: []string{"response.obj"},
					Optional: []string{"response.location"},
				})).
				Create("request.uri")
			require.Nil(t, err)

			assert.Equal(t, "ok", report.Assembly)
			require.Len(t, report.Entries, 2)
			assert.Equal(t, []string{"response.obj"}, report.Entries[0].Defines)
			assert.Equal(t, []string{"response.location"}, report.Entries[1].Unavailable)
			assert.Contains(t, report.String(), "unavailable optional: response.location")
		})
	})

	t.Run("will return a build error", func(t *testing.T) {
		t.Run("if a required field is defined later", func(t *testing.T) {
			_, _, err := NewAssembly[*journal]("late").
				Add("consumer", declare("consumer", Contract{Requires: []string{"response.obj"}})).
				Add("producer", declare("producer", Contract{Defines: []string{"response.obj"}})).
				Create()

			var berr BuildError
			require.ErrorAs(t, err, &berr)
			assert.Equal(t, []MissingField{{Processor: "consumer", Field: "response.obj"}}, berr.Missing)
		})

		t.Run("if a placement target is unknown", func(t *testing.T) {
			_, _, err := NewAssembly[*journal]("unknown").
				Add("a", visit("a", Proceed), After("missing")).
				Create()

			var berr BuildError
			require.ErrorAs(t, err, &berr)
			assert.Len(t, berr.Problems, 1)
		})

		t.Run("if an assembly includes itself indirectly", func(t *testing.T) {
			a := NewAssembly[*journal]("a")
			b := NewAssembly[*journal]("b").Include(a)
			a.Include(b)

			_, _, err := a.Create()

			var berr BuildError
			require.ErrorAs(t, err, &berr)
			assert.Contains(t, berr.Error(), `assembly "a" includes itself`)
		})

		t.Run("if a processor is nil", func(t *testing.T) {
			_, _, err := NewAssembly[*journal]("nil").Add("a", nil).Create()

			var berr BuildError
			assert.ErrorAs(t, err, &berr)
		})
	})
}
