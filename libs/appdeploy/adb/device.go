// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package adb

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
)

// Device is a Conn implementation backed by the adb binary.
type Device struct {
	// ADB is the path of the adb binary.  Defaults to "adb" on PATH.
	ADB string
	// Serial selects the device when more than one is connected.
	Serial string
}

var _ Conn = &Device{}

// ListDirectory implements Conn.
func (d *Device) ListDirectory(ctx context.Context, path string) (string, error) {
	return d.run(ctx, "shell", "ls", "-t", path)
}

// MakeDirectory implements Conn.
func (d *Device) MakeDirectory(ctx context.Context, path string) error {
	_, err := d.run(ctx, "shell", "mkdir", "-p", path)
	return err
}

// RemoveFiles implements Conn.
func (d *Device) RemoveFiles(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"shell", "rm", "-f"}, paths...)
	_, err := d.run(ctx, args...)
	return err
}

// TouchFile implements Conn.
func (d *Device) TouchFile(ctx context.Context, path string) error {
	_, err := d.run(ctx, "shell", "touch", path)
	return err
}

// Push implements Conn.
func (d *Device) Push(ctx context.Context, local, remote string) error {
	_, err := d.run(ctx, "push", local, remote)
	return err
}

// RunInstaller implements Conn.
func (d *Device) RunInstaller(ctx context.Context, args ...string) (string, error) {
	return d.run(ctx, append([]string{"shell", "pm"}, args...)...)
}

// Shell implements Conn.
func (d *Device) Shell(ctx context.Context, args ...string) (string, error) {
	return d.run(ctx, append([]string{"shell"}, args...)...)
}

// WaitConnected blocks until the device reports its state over adb,
// retrying transient transport failures with backoff.  It is the only
// place in this package where a call is retried; everything else
// surfaces failures to the caller.
func (d *Device) WaitConnected(ctx context.Context) error {
	f := func() error {
		if _, err := d.run(ctx, "get-state"); err != nil {
			if _, ok := err.(*CommandError); !ok {
				return transient.Tag.Apply(err)
			}
			return err
		}
		return nil
	}
	return retry.Retry(ctx, transient.Only(waitRetry), f, retry.LogCallback(ctx, "adb get-state"))
}

func waitRetry() retry.Iterator {
	return &retry.ExponentialBackoff{
		Limited: retry.Limited{
			Delay:   500 * time.Millisecond,
			Retries: 8,
		},
		Multiplier: 2,
	}
}

func (d *Device) adbPath() string {
	if d.ADB != "" {
		return d.ADB
	}
	return "adb"
}

// run executes one adb invocation, killing it if ctx expires.  A
// nonzero exit becomes a *CommandError; everything else that goes wrong
// is a transport error.
func (d *Device) run(ctx context.Context, args ...string) (string, error) {
	full := args
	if d.Serial != "" {
		full = append([]string{"-s", d.Serial}, args...)
	}
	cmd := exec.Command(d.adbPath(), full...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	aborted, waitErr, err := runWithAbort(ctx, cmd)
	if err != nil {
		return "", errors.WrapIf(err, "start adb %q", args)
	}
	if aborted {
		return "", errors.WrapIf(ctx.Err(), "adb %q", args)
	}
	if waitErr != nil {
		status, ok := exitStatus(waitErr)
		if !ok {
			return "", errors.WrapIf(waitErr, "adb %q", args)
		}
		return "", &CommandError{Args: args, Output: buf.String(), ExitStatus: status}
	}
	return buf.String(), nil
}

// killGrace is the duration between sending SIGTERM and SIGKILL when
// an adb invocation outlives its context.
const killGrace = 6 * time.Second

// runWithAbort runs an exec.Cmd with context cancellation.  The command
// has been waited for when this function returns.  The returned error
// is non-nil only if the command failed to start; waitErr is the error
// from waiting for a started command.
func runWithAbort(ctx context.Context, cmd *exec.Cmd) (aborted bool, waitErr, err error) {
	if err := cmd.Start(); err != nil {
		return false, nil, err
	}
	exited := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()
	select {
	case <-ctx.Done():
		terminate(ctx, cmd, exited)
		return true, waitErr, nil
	case <-exited:
	}
	return false, waitErr, nil
}

// terminate terminates a command using SIGTERM and then SIGKILL.
// exited is closed when the command has been waited for.
func terminate(ctx context.Context, cmd *exec.Cmd, exited <-chan struct{}) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.Warningf(ctx, "Failed to SIGTERM adb: %s", err)
	}
	select {
	case <-time.After(killGrace):
		if err := cmd.Process.Kill(); err != nil {
			logging.Warningf(ctx, "Failed to SIGKILL adb: %s", err)
		}
		<-exited
	case <-exited:
	}
}

func exitStatus(err error) (int, bool) {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return 0, false
	}
	ws, ok := ee.Sys().(syscall.WaitStatus)
	if !ok {
		return 0, false
	}
	return ws.ExitStatus(), true
}
