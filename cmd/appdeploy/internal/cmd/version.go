// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/maruel/subcommands"
)

// versionNumber is the version of the appdeploy tool.
const versionNumber = "1.0.0"

// Version subcommand: print the tool version.
var Version = &subcommands.Command{
	UsageLine: "version",
	ShortDesc: "print appdeploy version",
	LongDesc:  "Print appdeploy version.",
	CommandRun: func() subcommands.CommandRun {
		return &versionRun{}
	},
}

type versionRun struct {
	subcommands.CommandRunBase
}

func (c *versionRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	fmt.Fprintf(a.GetOut(), "%s %s\n", progName, versionNumber)
	return 0
}
