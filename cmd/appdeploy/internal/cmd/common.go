// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"infra/libs/appdeploy/adb"
)

const progName = "appdeploy"

// remoteCacheDir is where uploaded packages are kept on the device.
const remoteCacheDir = "/data/local/tmp/appdeploy_cache"

// deviceFlags are the flags shared by every subcommand that talks to
// a device.
type deviceFlags struct {
	serial  string
	adbPath string
	timeout time.Duration
}

func (f *deviceFlags) Register(fl *flag.FlagSet) {
	fl.StringVar(&f.serial, "serial", "", "Device serial, as shown by `adb devices`.")
	fl.StringVar(&f.adbPath, "adb", "adb", "Path of the adb binary.")
	fl.DurationVar(&f.timeout, "timeout", 5*time.Minute, "Deadline for the whole operation.")
}

func (f *deviceFlags) conn() *adb.Device {
	return &adb.Device{ADB: f.adbPath, Serial: f.serial}
}

func (f *deviceFlags) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.timeout)
}

// UserErrorReporter reports a detailed error message to the user.
//
// PrintError() uses a UserErrorReporter to print multi-line user error
// details along with the actual error.
type UserErrorReporter interface {
	// Report a user-friendly error through w.
	ReportUserError(w io.Writer)
}

// PrintError reports errors back to the user.
//
// Detailed error information is printed if err is a UserErrorReporter.
func PrintError(w io.Writer, err error) {
	if u, ok := err.(UserErrorReporter); ok {
		u.ReportUserError(w)
	} else {
		fmt.Fprintf(w, "%s: %s\n", progName, err)
	}
}

// NewUsageError creates a new error that also reports flags usage
// error details.
func NewUsageError(flags flag.FlagSet, format string, a ...interface{}) error {
	return &usageError{
		error: fmt.Errorf(format, a...),
		flags: flags,
	}
}

type usageError struct {
	error
	flags flag.FlagSet
}

func (e *usageError) ReportUserError(w io.Writer) {
	fmt.Fprintf(w, "%s\n\nUsage:\n\n", e.error)
	e.flags.Usage()
}
