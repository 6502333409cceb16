// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"

	"infra/cmd/appdeploy/internal/flagx"
	"infra/libs/appdeploy/apk"
	"infra/libs/appdeploy/bundlecache"
	"infra/libs/appdeploy/deployer"
	"infra/libs/appdeploy/remotecache"
)

// Install subcommand: deploy a package to a device.
var Install = &subcommands.Command{
	UsageLine: "install [FLAGS...] PACKAGE_FILE",
	ShortDesc: "install a package onto a device",
	LongDesc: `Install a package onto a device.

PACKAGE_FILE is an .apk file or an .apks bundle.  Transfers are served
from a device-side package cache keyed by content, so bytes already on
the device are not pushed again, and bundles are extracted locally at
most once per distinct content.

Whether the package is installed, upgraded, downgraded or skipped is
decided from its version metadata against what the device reports as
installed.`,
	CommandRun: func() subcommands.CommandRun {
		c := &installRun{}
		c.deviceFlags.Register(&c.Flags)
		c.Flags.StringVar(&c.aaptPath, "aapt", "aapt", "Path of the aapt binary.")
		c.Flags.BoolVar(&c.enforceCurrentBuild, "enforce-current-build", false,
			"Force this exact build onto the device, reinstalling or downgrading if needed.")
		c.Flags.BoolVar(&c.grantPermissions, "grant-permissions", false,
			"Grant runtime permissions at install time.")
		c.Flags.Var(flagx.NewCommaList(&c.languages), "lang",
			"Comma-separated language splits to install from a bundle.")
		c.Flags.IntVar(&c.cacheCapacity, "cache-capacity", remotecache.DefaultCapacity,
			"Maximum number of packages kept in the device-side cache.")
		return c
	},
}

type installRun struct {
	subcommands.CommandRunBase
	deviceFlags
	aaptPath            string
	enforceCurrentBuild bool
	grantPermissions    bool
	languages           []string
	cacheCapacity       int
}

func (c *installRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if err := c.innerRun(a, args, env); err != nil {
		PrintError(a.GetErr(), err)
		return 1
	}
	return 0
}

func (c *installRun) innerRun(a subcommands.Application, args []string, env subcommands.Env) error {
	if len(args) != 1 {
		return NewUsageError(c.Flags, "exactly one package file required")
	}
	ctx := cli.GetContext(a, c, env)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn := c.conn()
	if err := conn.WaitConnected(ctx); err != nil {
		return errors.WrapIf(err, "wait for device")
	}
	bundles, err := bundlecache.New(c.cacheCapacity)
	if err != nil {
		return err
	}
	defer bundles.Close()

	d := &deployer.Deployer{
		Conn:     conn,
		Reader:   &apk.BadgingReader{AAPT: c.aaptPath},
		Packages: remotecache.New(conn, remoteCacheDir, c.cacheCapacity),
		Bundles:  bundles,
		Options: deployer.Options{
			EnforceCurrentBuild: c.enforceCurrentBuild,
			GrantPermissions:    c.grantPermissions,
			Languages:           c.languages,
		},
	}
	res, err := d.Deploy(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.GetOut(), "%s: %s (%s)\n", res.Package, res.Action, res.State)
	return nil
}
