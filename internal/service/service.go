// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package service assembles the allyd REST service from its config.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/z5labs/ally"
	"github.com/z5labs/ally/acl"
	"github.com/z5labs/ally/encode"
	"github.com/z5labs/ally/forward"
	"github.com/z5labs/ally/gateway"
	"github.com/z5labs/ally/header"
	"github.com/z5labs/ally/health"
	"github.com/z5labs/ally/internal/httpclient"
	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
	"github.com/z5labs/ally/server"
)

// Version is reported by the info route.
var Version = "dev"

// Route patterns served by allyd.
const (
	RouteAPI    = "api/"
	RouteInfo   = "info"
	RouteHealth = "health/"
)

// Builder returns the [ally.AppBuilder] of allyd. Logs are written to w.
func Builder(w io.Writer) ally.AppBuilder[Config] {
	return ally.AppBuilderFunc[Config](func(ctx context.Context, cfg Config) (ally.App, error) {
		logHandler := cfg.LogHandler(w)

		s, err := newService(ctx, cfg, logHandler)
		if err != nil {
			return nil, err
		}
		router, err := s.router()
		if err != nil {
			s.Close()
			return nil, err
		}

		opts := []server.RuntimeOption{
			server.ListenOn(cfg.Server.Addr),
			server.ReadTimeout(cfg.Server.ReadTimeout),
			server.LogHandler(logHandler),
		}
		var rt ally.App
		switch cfg.Server.Mode {
		case "", ModeSerial:
			rt = server.NewSerial(router, opts...)
		case ModeConcurrent:
			rt = server.NewConcurrent(router, opts...)
		default:
			s.Close()
			return nil, fmt.Errorf("unknown server mode: %q", cfg.Server.Mode)
		}

		app := ally.AppFunc(func(ctx context.Context) error {
			s.ready.Open()
			return rt.Run(ctx)
		})
		return ally.WithLifecycleHooks(app, ally.Lifecycle{
			PostRun: ally.LifecycleHookFunc(func(ctx context.Context) error {
				return s.Close()
			}),
		}), nil
	})
}

type service struct {
	cfg        Config
	log        *slog.Logger
	logHandler slog.Handler

	gateways []gateway.Gateway
	acl      *acl.BoltPrototype
	pool     *forward.Pool

	live  health.Binary
	ready health.Gate
}

func newService(ctx context.Context, cfg Config, h slog.Handler) (*service, error) {
	s := &service{
		cfg:        cfg,
		log:        slog.New(h),
		logHandler: h,
		pool:       forward.NewPool(),
	}

	gws, err := s.loadGateways(ctx)
	if err != nil {
		return nil, err
	}
	s.gateways = gws

	if cfg.ACL.Database == "" {
		return s, nil
	}
	db, err := s.openACL(ctx)
	if err != nil {
		return nil, err
	}
	s.acl = db
	return s, nil
}

// Close releases the downstream connections and the ACL database.
func (s *service) Close() error {
	err := s.pool.Close()
	if s.acl == nil {
		return err
	}
	cerr := s.acl.Close()
	if err != nil {
		return err
	}
	return cerr
}

func (s *service) loadGateways(ctx context.Context) ([]gateway.Gateway, error) {
	cfg := s.cfg.Gateways
	gws := slices.Clone(cfg.Static)

	if cfg.Remote != "" {
		client := httpclient.New(
			httpclient.Name("gateways"),
			httpclient.Timeout(10*time.Second),
			httpclient.MaxRetries(3),
			httpclient.TripAfter(3),
			httpclient.LogHandler(s.logHandler),
		)
		remote, err := gateway.Fetch(ctx, client, cfg.Remote)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to fetch gateways", logfield.String("url", cfg.Remote), logfield.Error(err))
			return nil, err
		}
		gws = append(gws, remote...)
	}

	if cfg.Elasticsearch != "" {
		gws = append(gws, gateway.Elasticsearch(cfg.Elasticsearch)...)
	}
	s.log.InfoContext(ctx, "loaded gateways", logfield.Int("count", len(gws)))
	return gws, nil
}

func (s *service) openACL(ctx context.Context) (*acl.BoltPrototype, error) {
	cfg := s.cfg.ACL
	db, err := acl.OpenBolt(cfg.Database)
	if err != nil {
		return nil, err
	}

	err = s.synchronize(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *service) synchronize(ctx context.Context, db *acl.BoltPrototype) error {
	cfg := s.cfg.ACL
	for _, a := range cfg.Accesses {
		_, err := db.RegisterAccess(ctx, a.Method, a.Path)
		if err != nil {
			return err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Filters)) {
		err := db.DefineFilter(ctx, name, cfg.Filters[name]...)
		if err != nil {
			return err
		}
	}

	p, _, err := pipeline.NewAssembly[*acl.Solicit]("acl").
		Add("rights", acl.DefaultRights{}).
		Add("sync", acl.NewSynchronizer(db, acl.SyncLogHandler(s.logHandler))).
		Create(acl.FieldRepository, acl.FieldTypes)
	if err != nil {
		return err
	}
	_, err = p.Execute(ctx, solicitOf(cfg))
	return err
}

func solicitOf(cfg ACLConfig) *acl.Solicit {
	types := make([]*acl.TypeAcl, 0, len(cfg.Types))
	for _, t := range cfg.Types {
		defaults := make([]*acl.Right, 0, len(t.Defaults))
		for _, name := range t.Defaults {
			defaults = append(defaults, &acl.Right{Name: name})
		}
		types = append(types, &acl.TypeAcl{Name: t.Name, Defaults: defaults})
	}
	return &acl.Solicit{
		Repository: &acl.Repository{Children: repositories("acl.entities", cfg.Entities)},
		Types:      types,
	}
}

func repositories(source string, entities []EntityConfig) []*acl.Repository {
	repos := make([]*acl.Repository, 0, len(entities))
	for i, e := range entities {
		src := fmt.Sprintf("%s[%d]", source, i)
		accesses := make([]*acl.AccessConfig, 0, len(e.Accesses))
		for j, a := range e.Accesses {
			accesses = append(accesses, &acl.AccessConfig{
				URLs:    a.URLs,
				Methods: a.Methods,
				Filters: a.Filters,
				Source:  src,
				Line:    j + 1,
			})
		}
		repos = append(repos, &acl.Repository{
			Entity:   e.Name,
			Accesses: accesses,
			Children: repositories(src+".children", e.Children),
		})
	}
	return repos
}

func (s *service) router() (*server.Router, error) {
	rt := server.NewRouter(server.RouterLogHandler(s.logHandler))

	api, err := s.api()
	if err != nil {
		return nil, err
	}
	info, err := s.info()
	if err != nil {
		return nil, err
	}
	routes := []struct {
		pattern  string
		assembly *pipeline.Assembly[*rest.Exchange]
	}{
		{pattern: RouteAPI, assembly: api},
		{pattern: RouteInfo, assembly: info},
		{pattern: RouteHealth, assembly: s.health()},
	}
	for _, r := range routes {
		err := rt.Route(r.pattern, r.assembly)
		if err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (s *service) api() (*pipeline.Assembly[*rest.Exchange], error) {
	opts := []gateway.Option{gateway.LogHandler(s.logHandler)}
	if s.cfg.Gateways.Fallback != "" {
		opts = append(opts, gateway.Fallback(s.cfg.Gateways.Fallback))
	}
	nav, err := gateway.NewNavigator(s.gateways, opts...)
	if err != nil {
		return nil, err
	}

	fwd := []forward.Option{
		forward.WithPool(s.pool),
		forward.MaxRetries(s.cfg.Forward.MaxRetries),
		forward.LogHandler(s.logHandler),
	}
	if s.cfg.Forward.Port > 0 {
		fwd = append(fwd, forward.ExternalPort(s.cfg.Forward.Port))
	}
	if s.cfg.Forward.TripAfter > 0 {
		fwd = append(fwd, forward.TripAfter(s.cfg.Forward.TripAfter))
	}
	if len(s.cfg.Forward.RemoveHeaders) > 0 {
		fwd = append(fwd, forward.RemoveHeaders(s.cfg.Forward.RemoveHeaders...))
	}

	a := pipeline.NewAssembly[*rest.Exchange]("api").
		Add("decode", header.NewDecode(header.LogHandler(s.logHandler)))
	if s.acl != nil {
		a.Add("acl", acl.NewCheck(
			s.acl,
			acl.EntityHeader(s.cfg.ACL.Header),
			acl.CheckLogHandler(s.logHandler),
		))
	}
	return a.
		Add("navigate", nav).
		Add("forward", forward.New(fwd...)).
		Add("fixed", header.NewFixed(s.cfg.Headers)).
		Add("encode", header.NewEncode()), nil
}

func (s *service) info() (*pipeline.Assembly[*rest.Exchange], error) {
	models, err := encode.Models()
	if err != nil {
		return nil, err
	}
	return pipeline.NewAssembly[*rest.Exchange]("info").
		Add("decode", header.NewDecode(header.LogHandler(s.logHandler))).
		Add("info", &Info{
			Routes:   []string{RouteAPI, RouteInfo, RouteHealth},
			Gateways: gatewayNames(s.gateways),
		}).
		Add("render", encode.NewResponseEncoder(models, encode.LogHandler(s.logHandler))).
		Add("fixed", header.NewFixed(s.cfg.Headers)).
		Add("encode", header.NewEncode()), nil
}

func (s *service) health() *pipeline.Assembly[*rest.Exchange] {
	return pipeline.NewAssembly[*rest.Exchange]("health").
		Add("probe", health.NewEndpoint(map[string]health.Metric{
			"liveness":  &s.live,
			"readiness": &s.ready,
		})).
		Add("encode", header.NewEncode())
}

func gatewayNames(gws []gateway.Gateway) []string {
	names := make([]string, 0, len(gws))
	for _, gw := range gws {
		names = append(names, gw.Name)
	}
	return names
}
