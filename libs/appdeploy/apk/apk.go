// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package apk reads package metadata: identifier and version of a
// candidate package file, and of a package installed on a device.
package apk

import (
	"context"

	"infra/libs/appdeploy/adb"
	"infra/libs/appdeploy/pkgver"
)

// Info is the metadata of one package.
type Info struct {
	// Package is the package identifier, e.g. "com.example.app".
	Package string
	// Version is the package version; either field may be absent.
	Version pkgver.Version
}

// Reader reads package metadata.
type Reader interface {
	// Candidate reads the metadata of a local package file.
	Candidate(ctx context.Context, path string) (Info, error)
	// Installed reads the metadata of the package installed on the
	// device under the given identifier.  The bool is false when no
	// such package is installed.
	Installed(ctx context.Context, conn adb.Conn, pkg string) (Info, bool, error)
}
