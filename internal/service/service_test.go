// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/z5labs/ally/acl"
	"github.com/z5labs/ally/config"
	"github.com/z5labs/ally/gateway"
	"github.com/z5labs/ally/internal/noop"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, cfg Config) (*service, string) {
	t.Helper()
	s, err := newService(context.Background(), cfg, noop.LogHandler{})
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })

	rt, err := s.router()
	require.Nil(t, err)

	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func downstream(t *testing.T) (string, *http.Request) {
	t.Helper()
	var got http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = *r
		w.Header().Set("X-Downstream", "people")
		w.Write([]byte("jane"))
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String(), &got
}

func get(t *testing.T, url string, headers ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.Nil(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.Nil(t, err)
	return resp, string(b)
}

func people(host string) []gateway.Gateway {
	return []gateway.Gateway{{
		Name:     "people",
		Pattern:  `^api/User/([0-9]+)$`,
		Methods:  []string{http.MethodGet},
		Navigate: host + "/people/{1}",
	}}
}

func TestService_api(t *testing.T) {
	t.Run("will forward to the navigated gateway", func(t *testing.T) {
		host, got := downstream(t)
		_, url := serve(t, Config{
			Gateways: GatewaysConfig{Static: people(host)},
			Headers:  map[string][]string{"X-Served-By": {"allyd"}},
		})

		resp, body := get(t, url+"/api/User/42")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "jane", body)
		assert.Equal(t, "people", resp.Header.Get("X-Downstream"))
		assert.Equal(t, "allyd", resp.Header.Get("X-Served-By"))
		assert.Equal(t, "/people/42", got.URL.Path)
	})

	t.Run("will answer path not found", func(t *testing.T) {
		t.Run("if no gateway matches and there is no fallback", func(t *testing.T) {
			_, url := serve(t, Config{})

			resp, _ := get(t, url+"/api/Unknown")
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	})

	t.Run("will forward to the fallback", func(t *testing.T) {
		t.Run("if no gateway matches", func(t *testing.T) {
			host, got := downstream(t)
			_, url := serve(t, Config{Gateways: GatewaysConfig{Fallback: host}})

			resp, _ := get(t, url+"/api/Anything/else")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "/Anything/else", got.URL.Path)
		})
	})
}

func TestService_api_content(t *testing.T) {
	host, got := downstream(t)
	_, url := serve(t, Config{
		Gateways: GatewaysConfig{Static: []gateway.Gateway{{
			Name:     "people",
			Pattern:  `^api/User$`,
			Methods:  []string{http.MethodPost, http.MethodHead},
			Navigate: host + "/people",
		}}},
	})

	t.Run("will forward the content headers", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, url+"/api/User", strings.NewReader(`{"name":"jane"}`))
		require.Nil(t, err)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Accept", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.Nil(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, http.MethodPost, got.Method)
		assert.Equal(t, "application/json;charset=utf-8", got.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", got.Header.Get("Accept"))
	})

	t.Run("will answer HEAD requests without waiting for a body", func(t *testing.T) {
		for range 2 {
			resp, err := http.Head(url + "/api/User")
			require.Nil(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "people", resp.Header.Get("X-Downstream"))
			assert.Equal(t, http.MethodHead, got.Method)
		}
	})
}

func TestService_acl(t *testing.T) {
	host, got := downstream(t)
	_, url := serve(t, Config{
		Gateways: GatewaysConfig{Static: people(host)},
		ACL: ACLConfig{
			Database: filepath.Join(t.TempDir(), "acl.db"),
			Header:   acl.DefaultHeader,
			Accesses: []AccessConfig{{Method: http.MethodGet, Path: "User/*"}},
			Entities: []EntityConfig{{
				Children: []EntityConfig{{
					Name:     "jane",
					Accesses: []EntityAccess{{URLs: []string{"User/#"}}},
				}},
			}},
		},
	})

	t.Run("will forbid requests", func(t *testing.T) {
		testCases := []struct {
			name    string
			headers []string
		}{
			{name: "without an entity"},
			{name: "of an entity without access", headers: []string{acl.DefaultHeader, "john"}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				resp, _ := get(t, url+"/api/User/42", tc.headers...)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			})
		}
	})

	t.Run("will forward granted requests", func(t *testing.T) {
		resp, body := get(t, url+"/api/User/42", acl.DefaultHeader, "jane")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "jane", body)
		assert.Empty(t, got.Header.Get(acl.DefaultHeader))
	})
}

func TestService_info(t *testing.T) {
	_, url := serve(t, Config{
		Gateways: GatewaysConfig{Elasticsearch: "localhost:9200"},
	})

	resp, body := get(t, url+"/info")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))

	var info struct {
		Name     string   `json:"name"`
		Version  string   `json:"version"`
		Routes   []string `json:"routes"`
		Gateways []string `json:"gateways"`
	}
	require.Nil(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "allyd", info.Name)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, []string{RouteAPI, RouteInfo, RouteHealth}, info.Routes)
	assert.Equal(t, []string{"get_content_item_elastic", "get_content_elastic"}, info.Gateways)
}

func TestService_health(t *testing.T) {
	s, url := serve(t, Config{})

	resp, _ := get(t, url+"/health/liveness")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, url+"/health/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	s.ready.Open()
	resp, _ = get(t, url+"/health/readiness")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuilder(t *testing.T) {
	t.Run("will fail", func(t *testing.T) {
		t.Run("if the server mode is unknown", func(t *testing.T) {
			var buf bytes.Buffer
			_, err := Builder(&buf).Build(context.Background(), Config{Server: ServerConfig{Mode: "parallel"}})
			assert.ErrorContains(t, err, `unknown server mode: "parallel"`)
		})

		t.Run("if the remote gateways can not be fetched", func(t *testing.T) {
			srv := httptest.NewServer(http.NotFoundHandler())
			defer srv.Close()

			var buf bytes.Buffer
			_, err := Builder(&buf).Build(context.Background(), Config{Gateways: GatewaysConfig{Remote: srv.URL}})

			var ferr gateway.FetchError
			assert.ErrorAs(t, err, &ferr)
			assert.Contains(t, buf.String(), "failed to fetch gateways")
		})
	})
}

func TestConfig_decode(t *testing.T) {
	t.Run("will decode a yaml config over the defaults", func(t *testing.T) {
		yml := `
server:
  mode: concurrent
log:
  level: DEBUG
gateways:
  static:
    - name: people
      pattern: ^api/User
      navigate: users:8080/people
acl:
  database: acl.db
  entities:
    - name: jane
      accesses:
        - urls: [User/#]
          methods: [GET, PUT]
`
		m, err := config.Read(config.Map(DefaultConfig()), config.FromYaml(strings.NewReader(yml)))
		require.Nil(t, err)

		var cfg Config
		require.Nil(t, m.Unmarshal(&cfg))
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, ModeConcurrent, cfg.Server.Mode)
		assert.Equal(t, "DEBUG", cfg.Log.Level.String())
		assert.Equal(t, 80, cfg.Forward.Port)
		assert.Equal(t, acl.DefaultHeader, cfg.ACL.Header)
		assert.Equal(t, []gateway.Gateway{{Name: "people", Pattern: "^api/User", Navigate: "users:8080/people"}}, cfg.Gateways.Static)
		assert.Equal(t, []EntityConfig{{
			Name:     "jane",
			Accesses: []EntityAccess{{URLs: []string{"User/#"}, Methods: []string{"GET", "PUT"}}},
		}}, cfg.ACL.Entities)
	})
}

func TestConfig_LogHandler(t *testing.T) {
	t.Run("will mask the configured attributes", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := Config{Log: LogConfig{Format: "text", Mask: []string{"entity"}}}
		slog.New(cfg.LogHandler(&buf)).Warn("access denied", slog.String("entity", "jane"))
		assert.Contains(t, buf.String(), "entity=****")
	})

	t.Run("will drop records below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := Config{Log: LogConfig{Level: slog.LevelWarn}}
		slog.New(cfg.LogHandler(&buf)).Info("loaded gateways")
		assert.Empty(t, buf.String())
	})
}
