// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"

	"infra/libs/appdeploy/deployer"
)

// Uninstall subcommand: remove a package from a device.
var Uninstall = &subcommands.Command{
	UsageLine: "uninstall [FLAGS...] PACKAGE",
	ShortDesc: "uninstall a package from a device",
	LongDesc:  `Uninstall a package from a device by its identifier, e.g. com.example.app.`,
	CommandRun: func() subcommands.CommandRun {
		c := &uninstallRun{}
		c.deviceFlags.Register(&c.Flags)
		return c
	},
}

type uninstallRun struct {
	subcommands.CommandRunBase
	deviceFlags
}

func (c *uninstallRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if err := c.innerRun(a, args, env); err != nil {
		PrintError(a.GetErr(), err)
		return 1
	}
	return 0
}

func (c *uninstallRun) innerRun(a subcommands.Application, args []string, env subcommands.Env) error {
	if len(args) != 1 {
		return NewUsageError(c.Flags, "exactly one package identifier required")
	}
	ctx := cli.GetContext(a, c, env)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn := c.conn()
	if err := conn.WaitConnected(ctx); err != nil {
		return errors.WrapIf(err, "wait for device")
	}
	d := &deployer.Deployer{Conn: conn}
	if err := d.Uninstall(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.GetOut(), "%s: uninstalled\n", args[0])
	return nil
}
