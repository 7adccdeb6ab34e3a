// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package remote implements optional read-through object-storage mirrors.
// When a local object database misses a loose object, the engine consults
// one of these before giving up with MISSING_OBJECT — useful for a
// filtering farm that keeps a shallow local clone and leans on a shared
// bucket for history older than the clone's horizon.
package remote

import "context"

// Config selects and parameterizes a Mirror. Backend is "" (disabled),
// "s3", or "gcs"; the rest are backend-specific and ignored otherwise.
type Config struct {
	Backend         string
	Bucket          string
	Region          string // s3 only
	Endpoint        string // s3-compatible endpoints (minio, R2, ...)
	KeyPrefix       string
	AccessKeyID     string // s3 only; empty uses the default credential chain
	SecretAccessKey string // s3 only
}

// Mirror fetches a loose object's raw content by its object id. It does not
// decide what to do with the bytes — the caller writes them into the local
// object database so future lookups hit the fast path.
type Mirror interface {
	Fetch(ctx context.Context, oid string) ([]byte, error)
}

// New builds the Mirror named by cfg.Backend, or returns a nil Mirror with
// no error when cfg.Backend is empty (mirroring disabled).
func New(ctx context.Context, cfg Config) (Mirror, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "s3":
		return newS3Mirror(ctx, cfg)
	case "gcs":
		return newGCSMirror(ctx, cfg)
	default:
		return nil, &UnknownBackendError{Backend: cfg.Backend}
	}
}

// UnknownBackendError reports a Config.Backend value that names no known
// object-storage mirror.
type UnknownBackendError struct {
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return "remote: unknown object storage backend " + e.Backend
}
