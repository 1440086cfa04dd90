// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package acl synchronizes configured accesses into an ACL store and
// enforces them on requests.
package acl

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

var (
	// ErrUnknownAccess is returned when an access id was never registered.
	ErrUnknownAccess = errors.New("unknown access")

	// ErrUnknownFilter is returned when a filter name was never defined.
	ErrUnknownFilter = errors.New("unknown filter")
)

// Prototype is the store the [Synchronizer] keeps in sync. Entities and
// accesses are opaque identifiers e.g. a group name and the id returned
// by [GenerateID].
type Prototype interface {
	// GetAccesses returns the access ids granted to entity.
	GetAccesses(ctx context.Context, entity string) ([]string, error)

	// AddAcl grants access to entity.
	AddAcl(ctx context.Context, entity, access string) error

	// RemAcl revokes access from entity. Revoking an access which was
	// not granted is not an error.
	RemAcl(ctx context.Context, entity, access string) error

	// RegisterFilter attaches filter to the access of entity. It reports
	// false if the filter does not apply to url.
	RegisterFilter(ctx context.Context, entity, access, filter, url string) (bool, error)
}

// GenerateID returns the access id of method on the url pattern. Leading
// and trailing slashes of url are not significant.
func GenerateID(url, method string) string {
	sum := crc32.ChecksumIEEE([]byte(strings.ToUpper(method) + ":" + strings.Trim(url, "/")))
	return fmt.Sprintf("%08x", sum)
}
