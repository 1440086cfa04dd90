// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayConfig struct {
	Name     string   `config:"name"`
	Pattern  string   `config:"pattern"`
	Methods  []string `config:"methods"`
	Navigate string   `config:"navigate"`
}

type daemonConfig struct {
	Server struct {
		Addr        string        `config:"addr"`
		ReadTimeout time.Duration `config:"readtimeout"`
	} `config:"server"`
	Forward struct {
		MaxRetries int `config:"maxretries"`
	} `config:"forward"`
	Gateways struct {
		Fallback string          `config:"fallback"`
		Static   []gatewayConfig `config:"static"`
	} `config:"gateways"`
	Headers map[string][]string `config:"headers"`
}

const daemonYaml = `
server:
  addr: ":8080"
  readtimeout: 30s
forward:
  maxretries: 3
gateways:
  fallback: {{ env "ALLY_TEST_FALLBACK" }}
  static:
    - name: people
      pattern: ^api/User/([0-9]+)$
      methods: [GET, PUT]
      navigate: users:8080/people/{1}
headers:
  X-Served-By: [allyd]
`

const daemonJson = `{
  "server": {"addr": ":9090", "readtimeout": "1m"},
  "forward": {"maxretries": 1},
  "gateways": {"static": [{"name": "people", "pattern": "^api/User", "navigate": "users/people"}]}
}`

func readDaemon(t *testing.T, srcs ...Source) daemonConfig {
	t.Helper()
	m, err := Read(srcs...)
	require.Nil(t, err)

	var cfg daemonConfig
	require.Nil(t, m.Unmarshal(&cfg))
	return cfg
}

func TestFile_Apply(t *testing.T) {
	fsys := fstest.MapFS{
		"allyd.yaml": {Data: []byte(daemonYaml)},
		"allyd.json": {Data: []byte(daemonJson)},
		"empty.yml":  {Data: []byte("\n\n")},
		"allyd.toml": {Data: []byte(`addr = ":8080"`)},
	}

	t.Run("will render and decode a templated yaml file", func(t *testing.T) {
		t.Setenv("ALLY_TEST_FALLBACK", "legacy:8080")

		cfg := readDaemon(t, FromFile(fsys, "allyd.yaml", Templated()))
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 3, cfg.Forward.MaxRetries)
		assert.Equal(t, "legacy:8080", cfg.Gateways.Fallback)
		assert.Equal(t, []gatewayConfig{{
			Name:     "people",
			Pattern:  `^api/User/([0-9]+)$`,
			Methods:  []string{"GET", "PUT"},
			Navigate: "users:8080/people/{1}",
		}}, cfg.Gateways.Static)
		assert.Equal(t, []string{"allyd"}, cfg.Headers["X-Served-By"])
	})

	t.Run("will decode a json file", func(t *testing.T) {
		cfg := readDaemon(t, FromFile(fsys, "allyd.json"))
		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.Equal(t, time.Minute, cfg.Server.ReadTimeout)
		assert.Equal(t, "users/people", cfg.Gateways.Static[0].Navigate)
	})

	t.Run("will keep earlier values", func(t *testing.T) {
		t.Run("if the file is blank", func(t *testing.T) {
			cfg := readDaemon(t,
				Map{"server": map[string]any{"addr": ":8080"}},
				FromFile(fsys, "empty.yml"),
			)
			assert.Equal(t, ":8080", cfg.Server.Addr)
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			_, err := Read(FromFile(fsys, "missing.yaml"))
			assert.ErrorIs(t, err, fs.ErrNotExist)
		})

		t.Run("if the file extension is not a known format", func(t *testing.T) {
			_, err := Read(FromFile(fsys, "allyd.toml"))

			var ferr UnknownFormatError
			require.ErrorAs(t, err, &ferr)
			assert.Equal(t, "allyd.toml", ferr.Name)
		})

		t.Run("if the template does not parse", func(t *testing.T) {
			broken := fstest.MapFS{"allyd.yaml": {Data: []byte(`addr: {{ env`)}}
			_, err := Read(FromFile(broken, "allyd.yaml", Templated()))

			var terr TextTemplateParseError
			assert.ErrorAs(t, err, &terr)
		})
	})
}

func TestFormatOf(t *testing.T) {
	testCases := []struct {
		name   string
		format string
		ok     bool
	}{
		{name: "allyd.yaml", format: "yaml", ok: true},
		{name: "conf/allyd.YML", format: "yaml", ok: true},
		{name: "allyd.json", format: "json", ok: true},
		{name: "allyd"},
	}
	for _, tc := range testCases {
		t.Run("will resolve "+tc.name, func(t *testing.T) {
			f, ok := FormatOf(tc.name)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.format, f.Name)
		})
	}
}
