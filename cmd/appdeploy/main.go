// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command appdeploy places application packages onto Android devices
// without redundant transfers or extractions.
package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging/gologger"

	"infra/cmd/appdeploy/internal/cmd"
)

func getApplication() *cli.Application {
	return &cli.Application{
		Name:  "appdeploy",
		Title: "A tool for deploying application packages to Android devices.",
		Context: func(ctx context.Context) context.Context {
			return gologger.StdConfig.Use(ctx)
		},
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,

			cmd.Install,
			cmd.Uninstall,
			cmd.ClearCache,
			cmd.Extract,
			cmd.Version,
		},
	}
}

func main() {
	os.Exit(subcommands.Run(getApplication(), nil))
}
