// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package adb

import (
	"context"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"
)

// Property reads a single system property from the device.
func Property(ctx context.Context, c Conn, name string) (string, error) {
	out, err := c.Shell(ctx, "getprop", name)
	if err != nil {
		return "", errors.WrapIf(err, "read property %s", name)
	}
	return strings.TrimSpace(out), nil
}

// SDKVersion returns the device's API level.
func SDKVersion(ctx context.Context, c Conn) (int, error) {
	v, err := Property(ctx, c, "ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Reason("malformed SDK version %q", v)
	}
	return n, nil
}

// streamedInstallMinSDK is the first API level whose package manager
// accepts streamed installs, making a device-side package cache
// unnecessary.
const streamedInstallMinSDK = 24

// SupportsStreamedInstall reports whether the device can install
// packages from a streamed transfer.
func SupportsStreamedInstall(ctx context.Context, c Conn) (bool, error) {
	sdk, err := SDKVersion(ctx, c)
	if err != nil {
		return false, err
	}
	return sdk >= streamedInstallMinSDK, nil
}
