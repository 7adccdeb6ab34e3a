// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

type gcsMirror struct {
	client    *storage.Client
	bucket    string
	keyPrefix string
}

func newGCSMirror(ctx context.Context, cfg Config) (Mirror, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &gcsMirror{client: client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}, nil
}

func (m *gcsMirror) Fetch(ctx context.Context, oid string) ([]byte, error) {
	r, err := m.client.Bucket(m.bucket).Object(m.keyPrefix + oid).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
