// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"

	"infra/libs/appdeploy/remotecache"
)

// ClearCache subcommand: empty the device-side package cache.
var ClearCache = &subcommands.Command{
	UsageLine: "clear-cache [FLAGS...]",
	ShortDesc: "empty the device-side package cache",
	LongDesc: `Empty the device-side package cache.

Removes every package kept in the cache directory on the device.
Subsequent installs transfer their bytes again.`,
	CommandRun: func() subcommands.CommandRun {
		c := &clearCacheRun{}
		c.deviceFlags.Register(&c.Flags)
		return c
	},
}

type clearCacheRun struct {
	subcommands.CommandRunBase
	deviceFlags
}

func (c *clearCacheRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if err := c.innerRun(a, args, env); err != nil {
		PrintError(a.GetErr(), err)
		return 1
	}
	return 0
}

func (c *clearCacheRun) innerRun(a subcommands.Application, args []string, env subcommands.Env) error {
	if len(args) != 0 {
		return NewUsageError(c.Flags, "unexpected arguments")
	}
	ctx := cli.GetContext(a, c, env)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn := c.conn()
	if err := conn.WaitConnected(ctx); err != nil {
		return errors.WrapIf(err, "wait for device")
	}
	if err := remotecache.New(conn, remoteCacheDir, 0).Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.GetOut(), "cleared %s\n", remoteCacheDir)
	return nil
}
