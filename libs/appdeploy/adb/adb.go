// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package adb implements the command channel to an Android device.
//
// The Conn interface is the seam between deployment logic and the
// device: callers supply a deadline through the context on every call,
// and failures split into command-level failures (the device ran the
// command and rejected it, reported as *CommandError carrying the
// device's text output) and transport errors (everything else).
package adb

import (
	"context"
)

// Conn is a command channel to a single connected device.
type Conn interface {
	// ListDirectory lists a device directory with `ls -t`, so the
	// returned text has one entry per line, newest first.
	ListDirectory(ctx context.Context, path string) (string, error)
	// MakeDirectory creates a device directory and its parents.
	MakeDirectory(ctx context.Context, path string) error
	// RemoveFiles removes device files in one batched rm call.
	RemoveFiles(ctx context.Context, paths ...string) error
	// TouchFile updates the modification time of a device file.
	TouchFile(ctx context.Context, path string) error
	// Push copies a local file to the device.
	Push(ctx context.Context, local, remote string) error
	// RunInstaller runs the device package manager with the given
	// arguments and returns its text output.
	RunInstaller(ctx context.Context, args ...string) (string, error)
	// Shell runs an arbitrary shell command on the device.
	Shell(ctx context.Context, args ...string) (string, error)
}
