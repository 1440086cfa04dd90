// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/z5labs/ally/config/key"
)

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	prefix  string
	environ func() []string
}

// FromEnv returns a Source which will apply its config from the
// environment variables starting with prefix. The remainder of a
// variable name is lower cased and split on '_' into nested keys
// e.g. ALLY_SERVER_ADDR sets server.addr for the prefix "ALLY_".
func FromEnv(prefix string) Env {
	return Env{
		prefix:  prefix,
		environ: os.Environ,
	}
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || !strings.HasPrefix(k, src.prefix) {
			continue
		}
		k = strings.TrimPrefix(k, src.prefix)
		if k == "" {
			continue
		}

		var chain key.Chain
		for _, name := range strings.Split(strings.ToLower(k), "_") {
			if name == "" {
				continue
			}
			chain = append(chain, key.Name(name))
		}
		err := store.Set(chain, v)
		if err != nil {
			return err
		}
	}
	return nil
}
