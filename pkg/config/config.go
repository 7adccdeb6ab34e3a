// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the engine's ambient settings — memoization backend
// selection, ref-race retry policy, and optional remote object-storage
// mirrors — from a TOML file, the same format the teacher's tooling reaches
// for whenever a human is expected to hand-edit configuration.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// MemoBackend selects which modules/memo.Store implementations to chain,
// fastest first.
type MemoBackend struct {
	// Ristretto enables the in-process L1 cache and its capacity.
	RistrettoMaxEntries int64 `toml:"ristretto_max_entries"`
	// FileDir, if set, enables the durable L2 segment log rooted there.
	FileDir          string `toml:"file_dir"`
	FileSegmentBytes int64  `toml:"file_segment_bytes"`
	// MySQLDSN, if set, enables the shared L3 backend.
	MySQLDSN string `toml:"mysql_dsn"`
}

// ObjectStorage configures an optional read-through remote mirror consulted
// on MISSING_OBJECT before giving up.
type ObjectStorage struct {
	Backend         string `toml:"backend"` // "", "s3", or "gcs"
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`   // s3 only
	Endpoint        string `toml:"endpoint"` // s3-compatible endpoints
	KeyPrefix       string `toml:"key_prefix"`
	AccessKeyID     string `toml:"access_key_id"`     // s3 only; empty uses the default credential chain
	SecretAccessKey string `toml:"secret_access_key"` // s3 only
}

// Config is the root of .joshconfig.toml.
type Config struct {
	// RefRaceRetries bounds how many times a ref update compare-and-set is
	// retried after losing a race before giving up with REF_RACE.
	RefRaceRetries int `toml:"ref_race_retries"`
	// PreserveEmptyCommits disables the default empty-commit pruning rule
	// for filters applied under this configuration (modules/transform's
	// Options.PreserveEmptyCommits).
	PreserveEmptyCommits bool          `toml:"preserve_empty_commits"`
	Memo                 MemoBackend   `toml:"memo"`
	ObjectStorage        ObjectStorage `toml:"object_storage"`
}

// Default returns the configuration used when no .joshconfig.toml is
// present: an in-process-only ristretto cache and three ref-race retries.
func Default() *Config {
	return &Config{
		RefRaceRetries: 3,
		Memo: MemoBackend{
			RistrettoMaxEntries: 1 << 20,
		},
	}
}

// Load reads path, falling back to Default() if it does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
