// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package adb

import (
	"fmt"
	"strings"
)

// CommandError is a command-level failure: the device executed the
// command and rejected it.  Output holds the device's combined text
// output, which carries the failure signature callers classify on.
//
// Any device error that is not a *CommandError is a transport error
// (channel unreachable, adb binary missing, context deadline).
type CommandError struct {
	Args       []string
	Output     string
	ExitStatus int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("device command %q failed with status %d: %s",
		strings.Join(e.Args, " "), e.ExitStatus, strings.TrimSpace(e.Output))
}

// IsMissingDirectory reports whether err is a command failure caused by
// a path that does not exist on the device.
func IsMissingDirectory(err error) bool {
	ce, ok := err.(*CommandError)
	return ok && strings.Contains(ce.Output, "No such file or directory")
}
