// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acl

import (
	"context"

	"github.com/z5labs/ally/pipeline"
)

// Right is a named set of accesses belonging to an ACL type.
type Right struct {
	Name        string
	Type        string
	Description string
}

// TypeAcl groups rights under a type e.g. an application.
type TypeAcl struct {
	Name     string
	Defaults []*Right
}

// DefaultRights appends the default rights of every solicited type.
type DefaultRights struct{}

// Contract implements the [pipeline.Contracter] interface.
func (DefaultRights) Contract() pipeline.Contract {
	return pipeline.Contract{
		Optional: []string{FieldTypes},
		Defines:  []string{FieldRights},
	}
}

// Process implements the [pipeline.Processor] interface.
func (DefaultRights) Process(_ context.Context, _ *pipeline.Chain[*Solicit], s *Solicit) (pipeline.Next, error) {
	for _, t := range s.Types {
		for _, r := range t.Defaults {
			d := *r
			if d.Type == "" {
				d.Type = t.Name
			}
			s.Rights = append(s.Rights, &d)
		}
	}
	return pipeline.Proceed, nil
}
