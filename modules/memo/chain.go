// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package memo

import "context"

// Chain composes backends from fastest to slowest (e.g. L1 ristretto, L2
// file, L3 mysql). Get checks each in order and backfills faster layers on a
// hit from a slower one; Put writes through every layer.
type Chain struct {
	layers []Store
}

// NewChain builds a chain from fastest to slowest backend.
func NewChain(layers ...Store) *Chain {
	return &Chain{layers: layers}
}

func (c *Chain) Get(ctx context.Context, key Key) (string, bool, bool, error) {
	for i, l := range c.layers {
		id, empty, ok, err := l.Get(ctx, key)
		if err != nil {
			return "", false, false, err
		}
		if ok {
			for j := 0; j < i; j++ {
				_ = c.layers[j].Put(ctx, key, id, empty)
			}
			return id, empty, true, nil
		}
	}
	return "", false, false, nil
}

func (c *Chain) Put(ctx context.Context, key Key, id string, empty bool) error {
	for _, l := range c.layers {
		if err := l.Put(ctx, key, id, empty); err != nil {
			return err
		}
	}
	return nil
}
