// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"os"

	"github.com/josh-project/josh-filter/modules/filter"
	"github.com/josh-project/josh-filter/modules/memo"
	"github.com/josh-project/josh-filter/modules/odb"
	"github.com/josh-project/josh-filter/modules/odb/remote"
	"github.com/josh-project/josh-filter/modules/trace"
	"github.com/josh-project/josh-filter/modules/transform"
	"github.com/josh-project/josh-filter/pkg/config"
)

func openEngine(g *Globals) (*odb.ODB, memo.Store, *config.Config, error) {
	cfg, err := config.Load(".joshconfig.toml")
	if err != nil {
		return nil, nil, nil, trace.Errorf("load config: %v", err)
	}
	db, err := openODB(g, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := buildMemoStore(cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, trace.Errorf("build memo store: %v", err)
	}
	return db, store, cfg, nil
}

// openODB opens a fresh ODB handle rooted at g.CWD, wired to whatever
// object-storage mirror cfg.ObjectStorage names. Every ODB owns its own
// `git cat-file --batch-command` subprocess, so callers that need several
// concurrent handles against the same repository (Bulk's per-job workers)
// should call this once per worker rather than share one.
func openODB(g *Globals, cfg *config.Config) (*odb.ODB, error) {
	repoPath := g.CWD
	if repoPath == "" {
		repoPath = "."
	}
	mirror, err := remote.New(context.Background(), remote.Config{
		Backend:         cfg.ObjectStorage.Backend,
		Bucket:          cfg.ObjectStorage.Bucket,
		Region:          cfg.ObjectStorage.Region,
		Endpoint:        cfg.ObjectStorage.Endpoint,
		KeyPrefix:       cfg.ObjectStorage.KeyPrefix,
		AccessKeyID:     cfg.ObjectStorage.AccessKeyID,
		SecretAccessKey: cfg.ObjectStorage.SecretAccessKey,
	})
	if err != nil {
		return nil, trace.Errorf("build object storage mirror: %v", err)
	}
	db, err := odb.NewODBWithMirror(repoPath, odb.HashUNKNOWN, mirror)
	if err != nil {
		return nil, trace.Errorf("open object database at %s: %v", repoPath, err)
	}
	return db, nil
}

func buildMemoStore(cfg *config.Config) (memo.Store, error) {
	var layers []memo.Store
	if cfg.Memo.RistrettoMaxEntries > 0 {
		l1, err := memo.NewRistrettoStore(cfg.Memo.RistrettoMaxEntries)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l1)
	}
	if cfg.Memo.FileDir != "" {
		l2, err := memo.NewFileStore(cfg.Memo.FileDir, cfg.Memo.FileSegmentBytes)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l2)
	}
	if cfg.Memo.MySQLDSN != "" {
		l3, err := memo.NewMySQLStore(context.Background(), cfg.Memo.MySQLDSN)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l3)
	}
	if len(layers) == 0 {
		l1, err := memo.NewRistrettoStore(1 << 16)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l1)
	}
	return memo.NewChain(layers...), nil
}

// Filter applies a filter expression to a source ref and, when --update is
// given, points a target ref at the resulting filtered commit.
type Filter struct {
	Expr       string `arg:"" name:"filter" help:"Filter expression, e.g. :/lib:prefix=sub"`
	SourceRef  string `arg:"" name:"source-ref" help:"Ref or revision to filter"`
	Update     string `name:"update" help:"Target ref to point at the filtered result"`
	ShowDecomp bool   `short:"s" name:"show-decomposition" help:"Print the normalized filter and exit without filtering"`
}

func (c *Filter) Run(g *Globals) error {
	node, err := filter.Parse(c.Expr)
	if err != nil {
		return err
	}
	nf := filter.Normalize(node)
	if c.ShowDecomp {
		fmt.Fprintln(os.Stdout, nf.String())
		return nil
	}

	ctx := context.Background()
	db, store, cfg, err := openEngine(g)
	if err != nil {
		return err
	}
	defer db.Close()

	sourceCommit, err := db.ResolveRef(ctx, c.SourceRef)
	if err != nil {
		return trace.Errorf("resolve %s: %v", c.SourceRef, err)
	}
	resultID, dropped, err := transform.ApplyCommitWithOptions(ctx, db, store, nf, sourceCommit, transform.Options{PreserveEmptyCommits: cfg.PreserveEmptyCommits})
	if err != nil {
		return trace.Errorf("apply filter to %s: %v", c.SourceRef, err)
	}
	if dropped {
		fmt.Fprintln(os.Stderr, "josh-filter: filtered history is empty")
	} else {
		fmt.Fprintln(os.Stdout, resultID)
	}
	if c.Update == "" {
		return nil
	}
	return updateRefWithRetry(ctx, db, c.Update, resultID, cfg.RefRaceRetries)
}

func updateRefWithRetry(ctx context.Context, db *odb.ODB, refName, newID string, retries int) error {
	if newID == "" {
		return nil
	}
	ref := odb.ReferenceName(refName)
	for attempt := 0; attempt <= retries; attempt++ {
		oldID, err := db.ResolveRef(ctx, refName)
		if err != nil {
			return err
		}
		u, err := odb.NewRefUpdater(ctx, db.RepoPath(), os.Environ(), false)
		if err != nil {
			return err
		}
		if err := u.Start(); err != nil {
			_ = u.Close()
			return err
		}
		if err := u.Update(ref, newID, oldID); err != nil {
			_ = u.Close()
			return err
		}
		if err := u.Commit(); err != nil {
			_ = u.Close()
			if attempt < retries {
				continue
			}
			return &transform.RefRaceError{Ref: refName}
		}
		return u.Close()
	}
	return &transform.RefRaceError{Ref: refName}
}

// Unapply lifts a filtered-side commit back onto its source history.
type Unapply struct {
	Expr          string `arg:"" name:"filter" help:"Filter expression the filtered commit was produced with"`
	FilteredRef   string `arg:"" name:"filtered-ref" help:"Filtered-side commit to lift back"`
	BaseSourceRef string `arg:"" name:"base-source-ref" help:"Source-side commit the filtered chain was built from"`
	Update        string `name:"update" help:"Ref to point at the reconstructed source commit"`
}

func (c *Unapply) Run(g *Globals) error {
	node, err := filter.Parse(c.Expr)
	if err != nil {
		return err
	}
	nf := filter.Normalize(node)

	ctx := context.Background()
	db, store, cfg, err := openEngine(g)
	if err != nil {
		return err
	}
	defer db.Close()

	newID, err := db.ResolveRef(ctx, c.FilteredRef)
	if err != nil {
		return err
	}
	baseID, err := db.ResolveRef(ctx, c.BaseSourceRef)
	if err != nil {
		return err
	}
	resultID, err := transform.UnapplyCommit(ctx, db, store, nf, newID, baseID)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, resultID)
	if c.Update == "" {
		return nil
	}
	return updateRefWithRetry(ctx, db, c.Update, resultID, cfg.RefRaceRetries)
}

// Parse parses and normalizes a filter expression without touching any
// repository, printing its canonical form and filter-id.
type Parse struct {
	Expr string `arg:"" name:"filter" help:"Filter expression to parse"`
}

func (c *Parse) Run(g *Globals) error {
	node, err := filter.Parse(c.Expr)
	if err != nil {
		return err
	}
	nf := filter.Normalize(node)
	id := nf.ID()
	fmt.Fprintf(os.Stdout, "%s\n%x\n", nf.String(), id)
	return nil
}
