// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package ally bootstraps applications serving REST processings.
//
// [Run] reads the config sources, decodes them into the config type and
// builds then runs the [App]:
//
//	err := ally.Run(
//	    ctx,
//	    ally.RecoverBuilder(ally.OTel(builder)),
//	    config.FromYaml(f),
//	    config.FromEnv("ALLY_"),
//	)
//
// The processors themselves live in the sub packages: pipeline drives
// the chains, header negotiates the HTTP headers, encode renders
// response models, forward relays requests and server maps request
// paths to processings.
package ally
