// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmd

import (
	"io"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"

	"infra/libs/appdeploy/bundlecache"
)

// Extract subcommand: copy one part out of a package bundle.
var Extract = &subcommands.Command{
	UsageLine: "extract [FLAGS...] BUNDLE PART",
	ShortDesc: "extract one part of a package bundle",
	LongDesc: `Extract one part of a package bundle to stdout or a file.

BUNDLE is an .apks bundle and PART is a bundle-relative path such as
splits/base-master.apk.`,
	CommandRun: func() subcommands.CommandRun {
		c := &extractRun{}
		c.Flags.StringVar(&c.output, "o", "", "Write the part to this `file` instead of stdout.")
		return c
	},
}

type extractRun struct {
	subcommands.CommandRunBase
	output string
}

func (c *extractRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if err := c.innerRun(a, args, env); err != nil {
		PrintError(a.GetErr(), err)
		return 1
	}
	return 0
}

func (c *extractRun) innerRun(a subcommands.Application, args []string, env subcommands.Env) error {
	if len(args) != 2 {
		return NewUsageError(c.Flags, "bundle and part required")
	}
	ctx := cli.GetContext(a, c, env)

	cache, err := bundlecache.New(1)
	if err != nil {
		return err
	}
	defer cache.Close()

	p, err := cache.Extract(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	src, err := os.Open(p)
	if err != nil {
		return errors.WrapIf(err, "read extracted part")
	}
	defer src.Close()

	var dst io.Writer = a.GetOut()
	if c.output != "" {
		f, err := os.Create(c.output)
		if err != nil {
			return errors.WrapIf(err, "write extracted part")
		}
		defer f.Close()
		dst = f
	}
	_, err = io.Copy(dst, src)
	return errors.WrapIf(err, "copy extracted part")
}
