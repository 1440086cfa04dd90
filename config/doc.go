// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config merges configuration from several sources, e.g. a YAML
// or JSON file and the environment, and decodes the result into a struct.
//
// Sources are applied in order, later sources overriding the keys set by
// earlier ones:
//
//	m, err := config.Read(
//	    config.FromFile(os.DirFS("/etc/ally"), "allyd.yaml", config.Templated()),
//	    config.FromEnv("ALLY_"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	var cfg Config
//	err = m.Unmarshal(&cfg)
//
// Struct fields are matched by their "config" tag. Strings are coerced
// into durations, encoding.TextUnmarshaler implementations and comma
// separated string slices.
package config
