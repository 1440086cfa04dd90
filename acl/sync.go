// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acl

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"
)

// Context field names of a [Solicit].
const (
	FieldRepository = "solicit.repository"
	FieldTypes      = "solicit.types"
	FieldRights     = "solicit.rights"
)

// Solicit is the context of an ACL synchronization.
type Solicit struct {
	Repository *Repository
	Types      []*TypeAcl
	Rights     []*Right
}

// Repository is a node of the configured access tree. Nodes without an
// Entity only group their children.
type Repository struct {
	Entity   string
	Children []*Repository
	Accesses []*AccessConfig
}

// AccessConfig is a configured access together with where it was declared.
type AccessConfig struct {
	URLs    []string
	Methods []string
	Filters []string

	Source string
	Line   int
	Column int
}

func (a *AccessConfig) attrs() []any {
	return []any{
		logfield.String("source", a.Source),
		logfield.Int("line", a.Line),
		logfield.Int("column", a.Column),
	}
}

// DefaultMethods are used for accesses declaring no methods.
var DefaultMethods = []string{"GET"}

type syncOptions struct {
	methods    []string
	logHandler slog.Handler
}

// SyncOption configures a [Synchronizer].
type SyncOption func(*syncOptions)

// WithDefaultMethods overrides [DefaultMethods].
func WithDefaultMethods(methods ...string) SyncOption {
	return func(so *syncOptions) {
		so.methods = methods
	}
}

// SyncLogHandler configures the slog.Handler the synchronizer warns with.
func SyncLogHandler(h slog.Handler) SyncOption {
	return func(so *syncOptions) {
		so.logHandler = h
	}
}

// Synchronizer makes the accesses stored in a [Prototype] match the
// accesses of a configured [Repository] tree.
type Synchronizer struct {
	proto   Prototype
	methods []string
	log     *slog.Logger
}

// NewSynchronizer returns a Synchronizer over proto.
func NewSynchronizer(proto Prototype, opts ...SyncOption) *Synchronizer {
	so := &syncOptions{
		methods:    DefaultMethods,
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(so)
	}
	return &Synchronizer{
		proto:   proto,
		methods: so.methods,
		log:     slog.New(so.logHandler),
	}
}

// Contract implements the [pipeline.Contracter] interface.
func (sy *Synchronizer) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{FieldRepository},
	}
}

// Process implements the [pipeline.Processor] interface.
func (sy *Synchronizer) Process(ctx context.Context, _ *pipeline.Chain[*Solicit], s *Solicit) (pipeline.Next, error) {
	if s.Repository == nil {
		return pipeline.Proceed, nil
	}

	groups, order := group(bfs(s.Repository))
	for _, entity := range order {
		err := sy.sync(ctx, entity, groups[entity])
		if err != nil {
			return pipeline.Stop, err
		}
	}
	return pipeline.Proceed, nil
}

func (sy *Synchronizer) sync(ctx context.Context, entity string, accesses []*AccessConfig) error {
	stored, err := sy.proto.GetAccesses(ctx, entity)
	if err != nil {
		return err
	}
	stale := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		stale[id] = struct{}{}
	}

	log := sy.log.With(logfield.String("entity", entity))
	for _, a := range accesses {
		if len(a.URLs) == 0 {
			continue
		}
		methods := a.Methods
		if len(methods) == 0 {
			methods = sy.methods
		}
		type grant struct{ id, url string }
		var granted []grant
		for _, url := range a.URLs {
			url = strings.ReplaceAll(url, "#", "*")
			for _, method := range methods {
				id := GenerateID(url, method)
				delete(stale, id)

				err := sy.grant(ctx, entity, id)
				if errors.Is(err, ErrUnknownAccess) {
					log.WarnContext(ctx, "unknown access", append(a.attrs(), logfield.Path(url), logfield.String("method", method))...)
					continue
				}
				if err != nil {
					return err
				}
				granted = append(granted, grant{id: id, url: url})
			}
		}

		unused := make(map[string]struct{})
		for _, filter := range a.Filters {
			if filter == "" {
				continue
			}
			unused[filter] = struct{}{}
			for _, g := range granted {
				applied, err := sy.proto.RegisterFilter(ctx, entity, g.id, filter, g.url)
				if errors.Is(err, ErrUnknownFilter) || errors.Is(err, ErrUnknownAccess) {
					log.WarnContext(ctx, "unknown filter", append(a.attrs(), logfield.String("filter", filter))...)
					break
				}
				if err != nil {
					return err
				}
				if applied {
					delete(unused, filter)
				}
			}
		}
		if len(unused) > 0 {
			log.WarnContext(
				ctx,
				"filters do not apply to any of the access urls",
				append(a.attrs(), logfield.Strings("filters", slices.Sorted(maps.Keys(unused))), logfield.Strings("urls", a.URLs))...,
			)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(stale)) {
		err := sy.proto.RemAcl(ctx, entity, id)
		if err != nil {
			return err
		}
	}
	return nil
}

// grant re-adds the access so that previously registered filters are reset.
func (sy *Synchronizer) grant(ctx context.Context, entity, id string) error {
	err := sy.proto.RemAcl(ctx, entity, id)
	if err != nil {
		return err
	}
	return sy.proto.AddAcl(ctx, entity, id)
}

// bfs lists the nodes of the tree rooted at root which name an entity,
// breadth first.
func bfs(root *Repository) []*Repository {
	var found []*Repository
	queue := []*Repository{root}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if r == nil {
			continue
		}
		if r.Entity != "" {
			found = append(found, r)
		}
		queue = append(queue, r.Children...)
	}
	return found
}

func group(repos []*Repository) (map[string][]*AccessConfig, []string) {
	groups := make(map[string][]*AccessConfig)
	var order []string
	for _, r := range repos {
		if _, ok := groups[r.Entity]; !ok {
			order = append(order, r.Entity)
		}
		groups[r.Entity] = append(groups[r.Entity], r.Accesses...)
	}
	return groups, order
}
