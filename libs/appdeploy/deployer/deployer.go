// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package deployer decides whether a candidate package should be
// installed, upgraded, downgraded or left alone on a device, performs
// the device-side operation, and recovers from the known failure
// signatures with bounded retries.
package deployer

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra/libs/appdeploy/adb"
	"infra/libs/appdeploy/apk"
	"infra/libs/appdeploy/bundlecache"
	"infra/libs/appdeploy/fingerprint"
	"infra/libs/appdeploy/pkgver"
	"infra/libs/appdeploy/remotecache"
)

// deviceTempDir holds direct (cache-bypassing) transfers.
const deviceTempDir = "/data/local/tmp"

// Action is what a deployment attempt did to the device.
type Action int

// Possible actions.
const (
	Skipped Action = iota
	Installed
	Upgraded
	Downgraded
)

var actionNames = map[Action]string{
	Skipped:    "skipped",
	Installed:  "installed",
	Upgraded:   "upgraded",
	Downgraded: "downgraded",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return "invalid action"
}

// Override adjusts deployment behavior for a single package
// identifier.
type Override struct {
	EnforceCurrentBuild bool
}

// Options configure a Deployer.
type Options struct {
	// EnforceCurrentBuild forces the candidate onto the device even
	// when the same or a newer version is installed (the newer case
	// becomes an explicit downgrade).
	EnforceCurrentBuild bool
	// GrantPermissions grants runtime permissions at install time.
	GrantPermissions bool
	// Languages selects the per-language bundle parts to install
	// alongside the base part.
	Languages []string
	// Overrides maps package identifiers to per-package behavior.
	Overrides map[string]Override
}

// Result describes the outcome of one deployment attempt.
type Result struct {
	Package string
	State   pkgver.InstallState
	Action  Action
}

// Deployer deploys candidate packages to one device.
type Deployer struct {
	Conn     adb.Conn
	Reader   apk.Reader
	Packages *remotecache.Cache
	Bundles  *bundlecache.Cache
	Options  Options
}

// candidate is one package resolved to installable local files.
type candidate struct {
	info     apk.Info
	parts    []string // local part files, base part first
	streamed bool
}

// Deploy brings the device's installed package into line with the
// candidate at pkgPath (an .apk file or an .apks bundle).  The
// returned error, if any, names the last attempted action and carries
// the underlying failure signature; there is never a silent partial
// state.
func (d *Deployer) Deploy(ctx context.Context, pkgPath string) (Result, error) {
	// One support probe per orchestration run.  Streamed transfer
	// makes the device-side cache pointless, so it is bypassed.
	streamed, err := adb.SupportsStreamedInstall(ctx, d.Conn)
	if err != nil {
		return Result{}, errors.WrapIf(err, "probe streamed install support")
	}

	parts, err := d.resolveParts(ctx, pkgPath)
	if err != nil {
		return Result{}, err
	}
	info, err := d.Reader.Candidate(ctx, parts[0])
	if err != nil {
		return Result{}, err
	}
	c := &candidate{info: info, parts: parts, streamed: streamed}

	installed, present, err := d.Reader.Installed(ctx, d.Conn, info.Package)
	if err != nil {
		return Result{}, err
	}
	state := pkgver.Classify(info.Version, installed.Version, present)
	logging.Infof(ctx, "Package %s: %s", info.Package, state)

	res := Result{Package: info.Package, State: state}
	switch state {
	case pkgver.SameVersionInstalled:
		if !d.enforceFor(info.Package) {
			res.Action = Skipped
			return res, nil
		}
		res.Action = Installed
		err = d.install(ctx, c, true, "install")
	case pkgver.NewerVersionInstalled:
		if !d.enforceFor(info.Package) {
			res.Action = Skipped
			return res, nil
		}
		res.Action = Downgraded
		err = d.uninstallThenInstall(ctx, c, "downgrade")
	case pkgver.OlderVersionInstalled:
		res.Action = Upgraded
		err = d.upgrade(ctx, c)
	default:
		// Not installed, or metadata too incomplete to classify; the
		// device-side installer is the final arbiter.
		res.Action = Installed
		err = d.install(ctx, c, true, "install")
	}
	if err != nil {
		return res, err
	}
	logging.Infof(ctx, "Package %s: %s", info.Package, res.Action)
	return res, nil
}

// Uninstall removes a package from the device.
func (d *Deployer) Uninstall(ctx context.Context, pkg string) error {
	return d.uninstall(ctx, pkg)
}

func (d *Deployer) enforceFor(pkg string) bool {
	if o, ok := d.Options.Overrides[pkg]; ok {
		return o.EnforceCurrentBuild
	}
	return d.Options.EnforceCurrentBuild
}

// resolveParts returns the local files to install: the package itself,
// or the extracted base part plus any requested language parts of a
// bundle.  Language splits missing from the bundle are skipped with a
// warning; a missing base part means the file is not a valid bundle.
func (d *Deployer) resolveParts(ctx context.Context, pkgPath string) ([]string, error) {
	if !isBundle(pkgPath) {
		return []string{pkgPath}, nil
	}
	base, err := d.Bundles.Extract(ctx, pkgPath, bundlecache.BasePart)
	if err != nil {
		return nil, errors.WrapIf(err, "resolve base part of %s", pkgPath)
	}
	parts := []string{base}
	for _, lang := range d.Options.Languages {
		p, err := d.Bundles.Extract(ctx, pkgPath, bundlecache.LanguagePart(lang))
		if err != nil {
			if _, ok := err.(*bundlecache.PartNotFoundError); ok {
				logging.Warningf(ctx, "Bundle %s has no %q split, skipping", pkgPath, lang)
				continue
			}
			return nil, errors.WrapIf(err, "resolve %q part of %s", lang, pkgPath)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func isBundle(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".apks")
}

// upgrade replaces the installed package in place.  A rejection from
// the recognized install-failed family that the install path could not
// recover from falls back to uninstalling and installing fresh.
// Insufficient storage propagates (the bounded storage recovery
// already ran inside install), and so does any rejection with an
// unrecognized signature: uninstalling the user's package on an
// unknown error would be destructive guesswork.
func (d *Deployer) upgrade(ctx context.Context, c *candidate) error {
	err := d.install(ctx, c, true, "upgrade")
	if err == nil {
		return nil
	}
	ie, ok := err.(*InstallError)
	if !ok {
		return err
	}
	switch parseSignature(ie.Output) {
	case sigInstallFailed, sigTestOnly:
	default:
		return err
	}
	logging.Warningf(ctx, "Upgrade of %s rejected (%s), falling back to uninstall and fresh install",
		c.info.Package, err)
	return d.uninstallThenInstall(ctx, c, "upgrade fallback")
}

// uninstallThenInstall removes the installed package and installs the
// candidate from scratch.  If the uninstall fails, no install is
// attempted: installing over a possibly-stale package would hide the
// partial state.
func (d *Deployer) uninstallThenInstall(ctx context.Context, c *candidate, op string) error {
	if err := d.uninstall(ctx, c.info.Package); err != nil {
		return errors.WrapIf(err, "%s: cannot uninstall %s", op, c.info.Package)
	}
	return d.install(ctx, c, false, op)
}

func (d *Deployer) uninstall(ctx context.Context, pkg string) error {
	out, rejected, err := d.runInstaller(ctx, []string{"uninstall", pkg})
	if err != nil {
		return err
	}
	if rejected || strings.Contains(out, "Failure") {
		return &InstallError{Package: pkg, Op: "uninstall", Output: out}
	}
	return nil
}

// install places the candidate's parts on the device and runs one
// install attempt with the bounded recovery paths: a test-only
// rejection retries once with -t, and an insufficient-storage
// rejection of a cached transfer clears the package cache, re-places
// once and retries once.
func (d *Deployer) install(ctx context.Context, c *candidate, replace bool, op string) error {
	remotes, cleanup, err := d.placeParts(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()
	return d.tryInstall(ctx, c, remotes, replace, false, true, op)
}

func (d *Deployer) tryInstall(ctx context.Context, c *candidate, remotes []string, replace, testOnly, allowRecovery bool, op string) error {
	out, rejected, err := d.runInstaller(ctx, installArgs(remotes, replace, testOnly, d.Options.GrantPermissions))
	if err != nil {
		return errors.WrapIf(err, "%s %s", op, c.info.Package)
	}
	sig := parseSignature(out)
	if !rejected && sig == sigNone {
		return nil
	}
	switch sig {
	case sigAlreadyExists:
		// The desired bytes are already installed.  Idempotent outcome.
		logging.Infof(ctx, "Package %s already exists, treating as success", c.info.Package)
		return nil
	case sigTestOnly:
		if allowRecovery {
			logging.Infof(ctx, "Package %s is test-only, retrying with -t", c.info.Package)
			return d.tryInstall(ctx, c, remotes, replace, true, false, op)
		}
	case sigInsufficientStorage:
		if allowRecovery && !c.streamed {
			logging.Warningf(ctx, "Insufficient storage for %s, clearing package cache and retrying once",
				c.info.Package)
			if cerr := d.Packages.Clear(ctx); cerr != nil {
				return errors.WrapIf(cerr, "%s %s: recover from insufficient storage", op, c.info.Package)
			}
			remotes, cleanup, err := d.placeParts(ctx, c)
			if err != nil {
				return errors.WrapIf(err, "%s %s: re-place after clearing cache", op, c.info.Package)
			}
			defer cleanup()
			return d.tryInstall(ctx, c, remotes, replace, testOnly, false, op)
		}
	}
	return &InstallError{Package: c.info.Package, Op: op, Output: out}
}

// runInstaller invokes the device package manager once.  A
// command-level rejection comes back as rejected=true with the
// device's output; the returned error is a transport error only.
func (d *Deployer) runInstaller(ctx context.Context, args []string) (out string, rejected bool, err error) {
	out, err = d.Conn.RunInstaller(ctx, args...)
	if err != nil {
		if ce, ok := err.(*adb.CommandError); ok {
			return ce.Output, true, nil
		}
		return "", false, err
	}
	return out, false, nil
}

func installArgs(remotes []string, replace, testOnly, grant bool) []string {
	args := []string{"install"}
	if len(remotes) > 1 {
		args = []string{"install-multiple"}
	}
	if replace {
		args = append(args, "-r")
	}
	if testOnly {
		args = append(args, "-t")
	}
	if grant {
		args = append(args, "-g")
	}
	return append(args, remotes...)
}

// placeParts puts every part of the candidate on the device and
// returns the remote paths plus a cleanup for direct transfers.
// Cached placement retains every part's fingerprint so one part's
// placement cannot evict another before the install command runs.  If
// the cache is unusable for this attempt, placement falls back to a
// direct push.
func (d *Deployer) placeParts(ctx context.Context, c *candidate) (remotes []string, cleanup func(), err error) {
	var direct []string
	cleanup = func() {
		if len(direct) == 0 {
			return
		}
		if err := d.Conn.RemoveFiles(ctx, direct...); err != nil {
			logging.Warningf(ctx, "Failed to remove %d transferred packages: %s", len(direct), err)
		}
	}

	if !c.streamed {
		retain := stringset.New(len(c.parts))
		for _, p := range c.parts {
			h, err := fingerprint.File(p)
			if err != nil {
				return nil, cleanup, err
			}
			retain.Add(h)
		}
		for _, p := range c.parts {
			r, err := d.Packages.Place(ctx, p, retain)
			if err != nil {
				logging.Warningf(ctx, "Package cache unusable for this attempt (%s), pushing %s directly", err, p)
				r, err = d.pushDirect(ctx, p)
				if err != nil {
					return nil, cleanup, err
				}
				direct = append(direct, r)
			}
			remotes = append(remotes, r)
		}
		return remotes, cleanup, nil
	}

	for _, p := range c.parts {
		r, err := d.pushDirect(ctx, p)
		if err != nil {
			return nil, cleanup, err
		}
		direct = append(direct, r)
		remotes = append(remotes, r)
	}
	return remotes, cleanup, nil
}

func (d *Deployer) pushDirect(ctx context.Context, local string) (string, error) {
	remote := path.Join(deviceTempDir, "appdeploy."+uuid.New().String()+filepath.Ext(local))
	if err := d.Conn.Push(ctx, local, remote); err != nil {
		return "", errors.WrapIf(err, "push %s", local)
	}
	return remote, nil
}
