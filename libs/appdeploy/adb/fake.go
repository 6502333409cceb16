// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package adb

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
)

// FakeConn is a fake Conn implementation for testing.
//
// It models the device filesystem as per-directory listings ordered
// newest first, which is the shape ListDirectory reports.  Behavior of
// individual methods can be overridden with the corresponding Func
// field; recorded calls are available through accessors.
type FakeConn struct {
	mu        sync.Mutex
	dirs      map[string][]string
	pushes    []string
	removed   []string
	touched   []string
	installer [][]string

	// ListDirectoryFunc overrides ListDirectory if non-nil.
	ListDirectoryFunc func(path string) (string, error)
	// PushFunc overrides Push if non-nil.
	PushFunc func(local, remote string) error
	// InstallerFunc overrides RunInstaller if non-nil.
	InstallerFunc func(args ...string) (string, error)
	// ShellFunc overrides Shell if non-nil.
	ShellFunc func(args ...string) (string, error)
	// SDK is the API level reported for ro.build.version.sdk.
	// Defaults to 23, old enough that streamed installs are off.
	SDK int
}

var _ Conn = &FakeConn{}

// NewFakeConn returns a new FakeConn with an empty filesystem.
func NewFakeConn() *FakeConn {
	return &FakeConn{dirs: make(map[string][]string)}
}

// SeedFile adds a file to the fake filesystem as the oldest entry of
// its directory, creating the directory if needed.
func (f *FakeConn) SeedFile(remote string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir := path.Dir(remote)
	f.dirs[dir] = append(f.dirs[dir], path.Base(remote))
}

// Listing returns the current listing of a directory, newest first,
// or nil if the directory does not exist.
func (f *FakeConn) Listing(dir string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dirs[dir]...)
}

// Pushes returns the remote paths of all pushes, in order.
func (f *FakeConn) Pushes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pushes...)
}

// Removed returns the paths of all removed files, in order.
func (f *FakeConn) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// Touched returns the paths of all touched files, in order.
func (f *FakeConn) Touched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.touched...)
}

// InstallerCalls returns the arguments of all RunInstaller calls.
func (f *FakeConn) InstallerCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.installer...)
}

// ListDirectory implements Conn.
func (f *FakeConn) ListDirectory(ctx context.Context, p string) (string, error) {
	if f.ListDirectoryFunc != nil {
		return f.ListDirectoryFunc(p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names, ok := f.dirs[p]
	if !ok {
		return "", &CommandError{
			Args:       []string{"shell", "ls", "-t", p},
			Output:     fmt.Sprintf("ls: %s: No such file or directory", p),
			ExitStatus: 1,
		}
	}
	return strings.Join(names, "\n") + "\n", nil
}

// MakeDirectory implements Conn.
func (f *FakeConn) MakeDirectory(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dirs[p]; !ok {
		f.dirs[p] = []string{}
	}
	return nil
}

// RemoveFiles implements Conn.
func (f *FakeConn) RemoveFiles(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		dir, name := path.Dir(p), path.Base(p)
		f.dirs[dir] = deleteName(f.dirs[dir], name)
		f.removed = append(f.removed, p)
	}
	return nil
}

// TouchFile implements Conn.
func (f *FakeConn) TouchFile(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, name := path.Dir(p), path.Base(p)
	f.dirs[dir] = append([]string{name}, deleteName(f.dirs[dir], name)...)
	f.touched = append(f.touched, p)
	return nil
}

// Push implements Conn.
func (f *FakeConn) Push(ctx context.Context, local, remote string) error {
	if f.PushFunc != nil {
		if err := f.PushFunc(local, remote); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, name := path.Dir(remote), path.Base(remote)
	f.dirs[dir] = append([]string{name}, deleteName(f.dirs[dir], name)...)
	f.pushes = append(f.pushes, remote)
	return nil
}

// RunInstaller implements Conn.
func (f *FakeConn) RunInstaller(ctx context.Context, args ...string) (string, error) {
	f.mu.Lock()
	f.installer = append(f.installer, append([]string(nil), args...))
	f.mu.Unlock()
	if f.InstallerFunc != nil {
		return f.InstallerFunc(args...)
	}
	return "Success\n", nil
}

// Shell implements Conn.
func (f *FakeConn) Shell(ctx context.Context, args ...string) (string, error) {
	if f.ShellFunc != nil {
		return f.ShellFunc(args...)
	}
	if len(args) == 2 && args[0] == "getprop" && args[1] == "ro.build.version.sdk" {
		sdk := f.SDK
		if sdk == 0 {
			sdk = 23
		}
		return fmt.Sprintf("%d\n", sdk), nil
	}
	return "", nil
}

func deleteName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
