// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/josh-project/josh-filter/modules/term"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var (
	blueColorMap = map[term.Level]string{
		term.Level256: "\x1b[36m",
		term.Level16M: "\x1b[38;2;72;198;239m",
	}
)

// Bar wraps a single mpb progress bar tracking the commit-transform walk
// (apply_commit / unapply_commit) over a source ref's history.
type Bar struct {
	p     *mpb.Progress
	bar   *mpb.Bar
	total int
}

func wrapDescription(description string) string {
	if term.StderrLevel != term.LevelNone {
		color := blueColorMap[term.StderrLevel]
		if color == "" {
			return description
		}
		return fmt.Sprintf("%s%s\x1b[0m", color, description)
	}
	return description
}

// NewBar creates a determinate progress bar over total commits to be
// filtered. When quiet is true, all operations are no-ops.
func NewBar(description string, total int, quiet bool) *Bar {
	if quiet || total <= 0 {
		return &Bar{total: total}
	}
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name(wrapDescription(description))),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d"), decor.Percentage()),
	)
	return &Bar{p: p, bar: bar, total: total}
}

// NewUnknownBar creates an indeterminate spinner for phases whose total
// commit count is not known ahead of time (e.g. streaming a ref history).
func NewUnknownBar(description string, quiet bool) *Bar {
	if quiet {
		return &Bar{}
	}
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	bar := p.AddSpinner(-1,
		mpb.SpinnerOnLeft,
		mpb.PrependDecorators(decor.Name(wrapDescription(description))),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)
	return &Bar{p: p, bar: bar}
}

func (b *Bar) Add(n int) {
	if b.bar != nil {
		b.bar.IncrBy(n)
	}
}

func (b *Bar) Finish() {
	if b.bar != nil {
		b.bar.SetTotal(-1, true)
	}
	if b.p != nil {
		b.p.Wait()
	}
}

func (b *Bar) Exit() {
	if b.bar != nil {
		b.bar.Abort(true)
	}
	if b.p != nil {
		b.p.Wait()
	}
}

func makeSingleBarDesc(oid string, round int) string {
	short := oid
	if len(short) > 8 {
		short = short[:8]
	}
	if round == 0 {
		return fmt.Sprintf("filtering %s ...", short)
	}
	return fmt.Sprintf("filtering %s [\x1b[33mretrying\x1b[0m] ...", short)
}

// NewSingleBar tracks the progress of writing one large blob through the
// object database, in bytes. round distinguishes a retry attempt after a
// racing update_ref.
func NewSingleBar(r io.Reader, total int64, current int64, oid string, round int) (io.Reader, io.Closer) {
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40), mpb.WithRefreshRate(65*time.Millisecond))
	bar := p.AddBar(total,
		mpb.PrependDecorators(decor.Name(makeSingleBarDesc(oid, round))),
		mpb.AppendDecorators(decor.CountersKibiByte("% .2f / % .2f")),
	)
	bar.SetCurrent(current)
	return bar.ProxyReader(r), closerFunc(func() error {
		p.Wait()
		return nil
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
