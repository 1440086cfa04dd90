// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"fmt"
	"slices"
)

type element[C any] struct {
	name string
	proc Processor[C]
	sub  *Assembly[C]
}

// Placement positions a newly added element relative to an existing one.
type Placement struct {
	before string
	after  string
}

// Before places the element right before the element with the given name.
func Before(name string) Placement {
	return Placement{before: name}
}

// After places the element right after the element with the given name.
func After(name string) Placement {
	return Placement{after: name}
}

// Assembly is a named, ordered composition of processors and included
// sub-assemblies. An Assembly becomes runnable through [Assembly.Create].
type Assembly[C any] struct {
	name     string
	elems    []element[C]
	problems []string
}

// NewAssembly returns an empty Assembly.
func NewAssembly[C any](name string) *Assembly[C] {
	return &Assembly[C]{name: name}
}

// Name returns the assembly name.
func (a *Assembly[C]) Name() string {
	return a.name
}

// Add appends the processor p under the given name. If a placement is
// provided the processor is inserted relative to that element instead.
func (a *Assembly[C]) Add(name string, p Processor[C], placements ...Placement) *Assembly[C] {
	if p == nil {
		a.problems = append(a.problems, fmt.Sprintf("processor %q is nil", name))
		return a
	}
	a.insert(element[C]{name: name, proc: p}, placements)
	return a
}

// Include splices sub into this assembly at the declared position. The
// processors of sub are flattened into the processing when created.
func (a *Assembly[C]) Include(sub *Assembly[C], placements ...Placement) *Assembly[C] {
	if sub == nil || sub == a {
		a.problems = append(a.problems, "invalid included assembly")
		return a
	}
	a.insert(element[C]{name: sub.name, sub: sub}, placements)
	return a
}

func (a *Assembly[C]) insert(e element[C], placements []Placement) {
	if len(placements) == 0 {
		a.elems = append(a.elems, e)
		return
	}
	p := placements[0]
	target := p.before
	offset := 0
	if target == "" {
		target = p.after
		offset = 1
	}
	i := slices.IndexFunc(a.elems, func(x element[C]) bool {
		return x.name == target
	})
	if i < 0 {
		a.problems = append(a.problems, fmt.Sprintf("cannot place %q relative to unknown %q", e.name, target))
		return
	}
	a.elems = slices.Insert(a.elems, i+offset, e)
}

type node[C any] struct {
	name     string
	proc     Processor[C]
	contract Contract
}

func (a *Assembly[C]) flatten(nodes []node[C], seen map[*Assembly[C]]bool, problems *[]string) []node[C] {
	if seen[a] {
		*problems = append(*problems, fmt.Sprintf("assembly %q includes itself", a.name))
		return nodes
	}
	seen[a] = true
	defer delete(seen, a)

	*problems = append(*problems, a.problems...)
	for _, e := range a.elems {
		if e.sub != nil {
			nodes = e.sub.flatten(nodes, seen, problems)
			continue
		}
		nodes = append(nodes, node[C]{
			name:     e.name,
			proc:     e.proc,
			contract: contractOf(e.proc),
		})
	}
	return nodes
}

// Create compiles the assembly into a reusable Processing. The provided
// fields are those already populated by whoever creates the contexts
// e.g. the HTTP front end. Every processor's required fields must be
// provided or defined by an earlier processor, otherwise a [BuildError]
// is returned. The returned [Report] describes the created processing.
func (a *Assembly[C]) Create(provided ...string) (*Processing[C], Report, error) {
	var problems []string
	nodes := a.flatten(nil, make(map[*Assembly[C]]bool), &problems)

	available := make(map[string]bool, len(provided))
	for _, f := range provided {
		available[f] = true
	}

	report := Report{Assembly: a.name, Provided: slices.Clone(provided)}
	var missing []MissingField
	for _, n := range nodes {
		entry := ReportEntry{
			Processor: n.name,
			Defines:   n.contract.Defines,
		}
		for _, f := range n.contract.Requires {
			if !available[f] {
				missing = append(missing, MissingField{Processor: n.name, Field: f})
			}
		}
		for _, f := range n.contract.Optional {
			if !available[f] {
				entry.Unavailable = append(entry.Unavailable, f)
			}
		}
		for _, f := range n.contract.Defines {
			available[f] = true
		}
		report.Entries = append(report.Entries, entry)
	}

	if len(missing) > 0 || len(problems) > 0 {
		return nil, report, BuildError{Assembly: a.name, Missing: missing, Problems: problems}
	}

	p := &Processing[C]{
		name:  a.name,
		nodes: nodes,
	}
	return p, report, nil
}
