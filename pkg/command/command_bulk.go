// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/josh-project/josh-filter/modules/filter"
	"github.com/josh-project/josh-filter/modules/trace"
	"github.com/josh-project/josh-filter/modules/transform"
	"github.com/josh-project/josh-filter/pkg/config"
	"github.com/josh-project/josh-filter/pkg/progress"
)

// Bulk applies many independent filter/source/target triples concurrently.
// Each line of the input (stdin, or --file) is '<filter> <source-ref>
// <target-ref>'; blank lines and '#' comments are skipped. Since ApplyCommit
// roots are independent of one another, the work fans out with
// golang.org/x/sync/errgroup bounded by GOMAXPROCS — each worker opens its
// own ODB handle, because the underlying `git cat-file --batch-command`
// pipe is a single serial conversation and cannot be shared across
// goroutines.
type Bulk struct {
	File string `name:"file" short:"f" help:"Read '<filter> <source-ref> <target-ref>' lines from this file instead of stdin"`
}

type bulkJob struct {
	line   int
	expr   string
	source string
	target string
}

func (c *Bulk) Run(g *Globals) error {
	in := os.Stdin
	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return trace.Errorf("open %s: %v", c.File, err)
		}
		defer f.Close()
		in = f
	}

	var jobs []bulkJob
	scanner := bufio.NewScanner(in)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return fmt.Errorf("bulk: line %d: expected '<filter> <source-ref> <target-ref>'", lineNo)
		}
		jobs = append(jobs, bulkJob{line: lineNo, expr: fields[0], source: fields[1], target: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return trace.Errorf("read job list: %v", err)
	}

	cfg, err := config.Load(".joshconfig.toml")
	if err != nil {
		return trace.Errorf("load config: %v", err)
	}
	store, err := buildMemoStore(cfg)
	if err != nil {
		return trace.Errorf("build memo store: %v", err)
	}

	ctx := context.Background()
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(runtime.GOMAXPROCS(0))
	results := make([]string, len(jobs))
	dropped := make([]bool, len(jobs))

	bar := progress.NewBar("filtering refs", len(jobs), false)
	defer bar.Finish()

	for i, job := range jobs {
		grp.Go(func() error {
			defer bar.Add(1)
			db, err := openODB(g, cfg)
			if err != nil {
				return fmt.Errorf("bulk: line %d: %w", job.line, err)
			}
			defer db.Close()

			node, err := filter.Parse(job.expr)
			if err != nil {
				return fmt.Errorf("bulk: line %d: %w", job.line, err)
			}
			nf := filter.Normalize(node)
			sourceCommit, err := db.ResolveRef(gctx, job.source)
			if err != nil {
				return fmt.Errorf("bulk: line %d: resolve %s: %w", job.line, job.source, err)
			}
			resultID, wasDropped, err := transform.ApplyCommitWithOptions(gctx, db, store, nf, sourceCommit, transform.Options{PreserveEmptyCommits: cfg.PreserveEmptyCommits})
			if err != nil {
				return fmt.Errorf("bulk: line %d: apply filter: %w", job.line, err)
			}
			dropped[i] = wasDropped
			if wasDropped {
				return nil
			}
			if err := updateRefWithRetry(gctx, db, job.target, resultID, cfg.RefRaceRetries); err != nil {
				return fmt.Errorf("bulk: line %d: update %s: %w", job.line, job.target, err)
			}
			results[i] = resultID
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	for i, job := range jobs {
		if dropped[i] {
			fmt.Fprintf(os.Stdout, "%s: dropped (empty)\n", job.target)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: %s\n", job.target, results[i])
	}
	return nil
}
