// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acl

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAccesses = []byte("accesses")
	bucketFilters  = []byte("filters")
	bucketACL      = []byte("acl")
)

// Access is a registered access definition.
type Access struct {
	ID     string `json:"-"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// BoltPrototype is a [Prototype] persisted in a bbolt database. Accesses
// and filters must be registered before they can be granted.
type BoltPrototype struct {
	db *bolt.DB
}

// OpenBolt opens, creating if needed, the database at filename.
func OpenBolt(filename string) (*BoltPrototype, error) {
	db, err := bolt.Open(filename, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAccesses, bucketFilters, bucketACL} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltPrototype{db: db}, nil
}

// Close closes the underlying database.
func (p *BoltPrototype) Close() error {
	return p.db.Close()
}

// RegisterAccess makes method on the url pattern grantable. A '*' in the
// pattern matches a single path segment.
func (p *BoltPrototype) RegisterAccess(ctx context.Context, method, pattern string) (string, error) {
	a := Access{
		ID:     GenerateID(pattern, method),
		Method: strings.ToUpper(method),
		Path:   strings.Trim(pattern, "/"),
	}
	bs, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	err = p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccesses).Put([]byte(a.ID), bs)
	})
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

// Accesses returns every registered access.
func (p *BoltPrototype) Accesses(ctx context.Context) ([]Access, error) {
	var as []Access
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccesses).ForEach(func(k, v []byte) error {
			var a Access
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			a.ID = string(k)
			as = append(as, a)
			return nil
		})
	})
	return as, err
}

// DefineFilter registers a filter applying to the given url patterns.
func (p *BoltPrototype) DefineFilter(ctx context.Context, name string, patterns ...string) error {
	bs, err := json.Marshal(patterns)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFilters).Put([]byte(name), bs)
	})
}

// GetAccesses implements the [Prototype] interface.
func (p *BoltPrototype) GetAccesses(ctx context.Context, entity string) ([]string, error) {
	var ids []string
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACL).Bucket([]byte(entity))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// AddAcl implements the [Prototype] interface.
func (p *BoltPrototype) AddAcl(ctx context.Context, entity, access string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAccesses).Get([]byte(access)) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownAccess, access)
		}
		b, err := tx.Bucket(bucketACL).CreateBucketIfNotExists([]byte(entity))
		if err != nil {
			return err
		}
		if b.Get([]byte(access)) != nil {
			return nil
		}
		return b.Put([]byte(access), []byte("[]"))
	})
}

// RemAcl implements the [Prototype] interface.
func (p *BoltPrototype) RemAcl(ctx context.Context, entity, access string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACL).Bucket([]byte(entity))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(access))
	})
}

// RegisterFilter implements the [Prototype] interface.
func (p *BoltPrototype) RegisterFilter(ctx context.Context, entity, access, filter, url string) (bool, error) {
	var applied bool
	err := p.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketFilters).Get([]byte(filter))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrUnknownFilter, filter)
		}
		var patterns []string
		if err := json.Unmarshal(raw, &patterns); err != nil {
			return err
		}
		if !slices.ContainsFunc(patterns, func(pattern string) bool { return matches(pattern, url) }) {
			return nil
		}

		b := tx.Bucket(bucketACL).Bucket([]byte(entity))
		if b == nil || b.Get([]byte(access)) == nil {
			return fmt.Errorf("%w: %s not granted to %s", ErrUnknownAccess, access, entity)
		}
		var filters []string
		if err := json.Unmarshal(b.Get([]byte(access)), &filters); err != nil {
			return err
		}
		applied = true
		if slices.Contains(filters, filter) {
			return nil
		}
		bs, err := json.Marshal(append(filters, filter))
		if err != nil {
			return err
		}
		return b.Put([]byte(access), bs)
	})
	return applied, err
}

// Filters returns the filters registered on the access of entity.
func (p *BoltPrototype) Filters(ctx context.Context, entity, access string) ([]string, error) {
	var filters []string
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACL).Bucket([]byte(entity))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(access))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &filters)
	})
	return filters, err
}

// Granted implements the [Granter] interface.
func (p *BoltPrototype) Granted(ctx context.Context, entity, method, uri string) (bool, error) {
	var granted bool
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketACL).Bucket([]byte(entity))
		if b == nil {
			return nil
		}
		accesses := tx.Bucket(bucketAccesses)
		return b.ForEach(func(k, _ []byte) error {
			if granted {
				return nil
			}
			raw := accesses.Get(k)
			if raw == nil {
				return nil
			}
			var a Access
			if err := json.Unmarshal(raw, &a); err != nil {
				return err
			}
			granted = strings.EqualFold(a.Method, method) && matches(a.Path, uri)
			return nil
		})
	})
	return granted, err
}

func matches(pattern, uri string) bool {
	ok, err := path.Match(strings.Trim(pattern, "/"), strings.Trim(uri, "/"))
	return err == nil && ok
}
