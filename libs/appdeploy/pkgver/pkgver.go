// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pkgver models Android package versions and classifies the
// relationship between a candidate package and whatever is installed
// on the device.
//
// Version codes are the ground truth because they are expected to be
// monotonic; version names are only trusted as a tie break or as a
// fallback when codes are missing.
package pkgver

import (
	"regexp"
	"strconv"
	"strings"
)

// Version is the version metadata of a package.  Either field may be
// absent: CodeKnown is false when the version code could not be read,
// and an empty Name means the version name is unavailable.
type Version struct {
	Code      int64
	CodeKnown bool
	Name      string
}

// InstallState describes how an installed package relates to a
// candidate package with the same identifier.
type InstallState int

// Possible install states.
const (
	Unknown InstallState = iota
	NotInstalled
	SameVersionInstalled
	OlderVersionInstalled
	NewerVersionInstalled
)

var stateNames = map[InstallState]string{
	Unknown:               "unknown",
	NotInstalled:          "not installed",
	SameVersionInstalled:  "same version installed",
	OlderVersionInstalled: "older version installed",
	NewerVersionInstalled: "newer version installed",
}

func (s InstallState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "invalid install state"
}

// Classify returns the install state of a candidate package given the
// installed package's version and presence flag.
//
// The relationship is decided by integer version codes when both are
// known.  A code tie falls through to a version name comparison: equal
// or unavailable names mean the same version, and any strict name
// difference means the device holds a different build under the same
// code, which is reported as a newer install rather than an upgrade
// target.  When either code is missing, names alone decide; when names
// are also unusable, the relationship is Unknown.
func Classify(candidate, installed Version, present bool) InstallState {
	if !present {
		return NotInstalled
	}
	if candidate.CodeKnown && installed.CodeKnown {
		switch {
		case installed.Code > candidate.Code:
			return NewerVersionInstalled
		case installed.Code < candidate.Code:
			return OlderVersionInstalled
		}
		if cmp, ok := CompareNames(installed.Name, candidate.Name); ok && cmp != 0 {
			return NewerVersionInstalled
		}
		return SameVersionInstalled
	}
	cmp, ok := CompareNames(installed.Name, candidate.Name)
	if !ok {
		return Unknown
	}
	switch {
	case cmp > 0:
		return NewerVersionInstalled
	case cmp < 0:
		return OlderVersionInstalled
	default:
		return SameVersionInstalled
	}
}

var nameSeparators = regexp.MustCompile(`[._-]`)

// CompareNames compares two version names under semantic-version
// coercion: names split into segments on dots, dashes and underscores,
// numeric segments compared as integers, other segments compared
// lexically, and missing trailing segments counted as zero.  The
// returned ok is false when either name is empty, in which case the
// comparison result is meaningless.
func CompareNames(a, b string) (cmp int, ok bool) {
	if a == "" || b == "" {
		return 0, false
	}
	as := nameSeparators.Split(a, -1)
	bs := nameSeparators.Split(b, -1)
	for i := 0; i < len(as) || i < len(bs); i++ {
		if c := compareSegments(segment(as, i), segment(bs, i)); c != 0 {
			return c, true
		}
	}
	return 0, true
}

func segment(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return "0"
}

func compareSegments(a, b string) int {
	an, aerr := strconv.ParseInt(a, 10, 64)
	bn, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		// Numeric segments order below non-numeric ones, as in semver
		// prerelease comparison.
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
