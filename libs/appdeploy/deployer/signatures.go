// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package deployer

import (
	"fmt"
	"strings"
)

// signature is a recognized text pattern in installer output.  Only
// the specific signatures drive recovery decisions; the generic
// install-failed family merely marks a failure as a device-side
// rejection rather than a transport problem.
type signature int

const (
	sigNone signature = iota
	sigAlreadyExists
	sigInsufficientStorage
	sigTestOnly
	sigInstallFailed
)

func parseSignature(out string) signature {
	switch {
	case strings.Contains(out, "INSTALL_FAILED_ALREADY_EXISTS"):
		return sigAlreadyExists
	case strings.Contains(out, "INSTALL_FAILED_INSUFFICIENT_STORAGE"):
		return sigInsufficientStorage
	case strings.Contains(out, "INSTALL_FAILED_TEST_ONLY"):
		return sigTestOnly
	case strings.Contains(out, "INSTALL_FAILED_"),
		strings.Contains(out, "INSTALL_PARSE_FAILED_"),
		strings.Contains(out, "Failure ["):
		return sigInstallFailed
	default:
		return sigNone
	}
}

// InstallError is a device-side rejection of an install operation.  Op
// names the last attempted action and Output carries the device's
// signature text.
type InstallError struct {
	Package string
	Op      string
	Output  string
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%s of %s failed: %s", e.Op, e.Package, strings.TrimSpace(e.Output))
}
