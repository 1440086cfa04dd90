// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"slices"

	"github.com/z5labs/ally/config/key"
)

// Map is an ordinary map[string]any but implements the Source interface.
type Map map[string]any

// Apply implements the Source interface. It recursively walks the underlying
// map to find key value pairs to set on the given store.
func (m Map) Apply(store Store) error {
	return walkMap(m, store, nil)
}

func walkMap(m map[string]any, store Store, chain key.Chain) error {
	for k, v := range m {
		sub := append(slices.Clip(chain), key.Name(k))
		switch x := v.(type) {
		case map[string]any:
			err := walkMap(x, store, sub)
			if err != nil {
				return err
			}
		default:
			err := store.Set(sub, x)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
