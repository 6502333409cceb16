// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package apk

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"

	"infra/libs/appdeploy/adb"
)

// BadgingReader reads candidate metadata with `aapt dump badging` and
// installed metadata with `dumpsys package` on the device.
type BadgingReader struct {
	// AAPT is the path of the aapt binary.  Defaults to "aapt" on PATH.
	AAPT string
}

var _ Reader = &BadgingReader{}

// Candidate implements Reader.
func (r *BadgingReader) Candidate(ctx context.Context, path string) (Info, error) {
	aapt := r.AAPT
	if aapt == "" {
		aapt = "aapt"
	}
	cmd := exec.CommandContext(ctx, aapt, "dump", "badging", path)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return Info{}, errors.WrapIf(err, "aapt dump badging %s: %s", path, strings.TrimSpace(buf.String()))
	}
	info, err := parseBadging(buf.String())
	if err != nil {
		return Info{}, errors.WrapIf(err, "read candidate metadata of %s", path)
	}
	return info, nil
}

// Installed implements Reader.
func (r *BadgingReader) Installed(ctx context.Context, conn adb.Conn, pkg string) (Info, bool, error) {
	out, err := conn.Shell(ctx, "dumpsys", "package", pkg)
	if err != nil {
		return Info{}, false, errors.WrapIf(err, "read installed metadata of %s", pkg)
	}
	info, present := parseDumpsys(pkg, out)
	return info, present, nil
}

var (
	badgingPackage = regexp.MustCompile(`package: name='([^']*)'`)
	badgingCode    = regexp.MustCompile(`versionCode='([^']*)'`)
	badgingName    = regexp.MustCompile(`versionName='([^']*)'`)

	dumpsysCode = regexp.MustCompile(`versionCode=(\d+)`)
	dumpsysName = regexp.MustCompile(`versionName=(\S+)`)
)

// parseBadging extracts package identity and version from aapt badging
// output.  Version fields may legitimately be empty in the output;
// they stay absent in the result.
func parseBadging(out string) (Info, error) {
	m := badgingPackage.FindStringSubmatch(out)
	if m == nil || m[1] == "" {
		return Info{}, errors.Reason("no package name in badging output")
	}
	info := Info{Package: m[1]}
	if m := badgingCode.FindStringSubmatch(out); m != nil && m[1] != "" {
		code, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Info{}, errors.Reason("malformed versionCode %q", m[1])
		}
		info.Version.Code = code
		info.Version.CodeKnown = true
	}
	if m := badgingName.FindStringSubmatch(out); m != nil {
		info.Version.Name = m[1]
	}
	return info, nil
}

// parseDumpsys extracts the installed version from dumpsys package
// output.  Absence of any package record means the package is not
// installed, which is a normal condition, not an error.
func parseDumpsys(pkg, out string) (Info, bool) {
	if !strings.Contains(out, "Package ["+pkg+"]") {
		return Info{}, false
	}
	info := Info{Package: pkg}
	if m := dumpsysCode.FindStringSubmatch(out); m != nil {
		if code, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			info.Version.Code = code
			info.Version.CodeKnown = true
		}
	}
	if m := dumpsysName.FindStringSubmatch(out); m != nil {
		info.Version.Name = m[1]
	}
	return info, true
}
