// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/josh-project/josh-filter/modules/transform"
	"github.com/josh-project/josh-filter/pkg/command"
	"github.com/josh-project/josh-filter/pkg/version"
)

type App struct {
	command.Globals
	Filter  command.Filter  `cmd:"" default:"withargs" help:"Apply a filter expression to a ref and optionally update a target ref"`
	Unapply command.Unapply `cmd:"unapply" help:"Lift a filtered-side commit back onto its source history"`
	Parse   command.Parse   `cmd:"parse" help:"Parse and normalize a filter expression"`
	Bulk    command.Bulk    `cmd:"bulk" help:"Apply many independent filter/source/target triples concurrently"`
	Version command.Version `cmd:"version" help:"Display version information"`
}

func main() {
	var app App
	ctx := kong.Parse(&app,
		kong.Name("josh-filter"),
		kong.Description("Content-addressed git commit/tree filtering engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version.GetVersionString()},
	)
	err := ctx.Run(&app.Globals)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "josh-filter:", err)
	switch err.(type) {
	case *transform.MissingObjectError:
		os.Exit(2)
	case *transform.UnappliableError:
		os.Exit(3)
	case *transform.RefRaceError:
		os.Exit(4)
	default:
		os.Exit(1)
	}
}
