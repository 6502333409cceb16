// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package bundlecache extracts multi-part package bundles into local
// directories and caches the results by content fingerprint, so a
// bundle's parts are extracted at most once per distinct content.
//
// Concurrent extractions of the same bundle path serialize on a
// per-path mutex; distinct bundles extract in parallel.  The cache
// owns the extracted directories: eviction and Close delete them from
// disk.
package bundlecache

import (
	"archive/zip"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/sync/mutexpool"
	"go.chromium.org/luci/common/sync/parallel"

	"infra/libs/appdeploy/fingerprint"
)

// DefaultCapacity is the entry limit used when no capacity is given.
const DefaultCapacity = 10

// BasePart is the bundle-relative path of the base package part.
const BasePart = "splits/base-master.apk"

// LanguagePart returns the bundle-relative path of a per-language part.
func LanguagePart(lang string) string {
	return "splits/base-" + lang + ".apk"
}

// PartNotFoundError means the bundle extracted fine but does not
// contain the requested part: either the file is not a valid bundle
// for this use, or the split is simply not present.
type PartNotFoundError struct {
	Bundle string
	Part   string
}

func (e *PartNotFoundError) Error() string {
	return "part " + e.Part + " not found in bundle " + e.Bundle
}

// Cache is a bounded extraction cache.  Close is the disposal method
// and must be called by the owning process's shutdown sequence; there
// are no implicit exit hooks.
type Cache struct {
	baseDir  string
	capacity int
	locks    mutexpool.P

	mu      sync.Mutex
	entries []entry // recency order, most recent first
	closed  bool
}

type entry struct {
	hash string
	dir  string
}

// New returns a Cache backed by a fresh private directory under the
// system temp dir.  A non-positive capacity selects DefaultCapacity.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	baseDir, err := ioutil.TempDir("", "appdeploy_bundles")
	if err != nil {
		return nil, errors.WrapIf(err, "create bundle cache")
	}
	return &Cache{baseDir: baseDir, capacity: capacity}, nil
}

// Extract returns the local path of one part inside the bundle,
// extracting the whole bundle first if its contents are not cached.
// Callers asking for the same bundle path concurrently block until the
// first extraction completes and then observe the populated cache.
func (c *Cache) Extract(ctx context.Context, bundle, part string) (string, error) {
	var p string
	var err error
	c.locks.WithMutex(bundle, func() {
		p, err = c.extract(ctx, bundle, part)
	})
	return p, err
}

func (c *Cache) extract(ctx context.Context, bundle, part string) (string, error) {
	hash, err := fingerprint.File(bundle)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", errors.Reason("bundle cache is closed")
	}
	dir, ok := c.lookupLocked(hash)
	c.mu.Unlock()

	if ok {
		if _, err := os.Stat(dir); err == nil {
			return resolvePart(dir, bundle, part)
		}
		// The backing directory vanished behind our back.  Drop the
		// stale entry and treat this as a miss.
		logging.Warningf(ctx, "Cached extraction of %s vanished from %s, re-extracting", bundle, dir)
		c.mu.Lock()
		c.dropLocked(hash)
		c.mu.Unlock()
	}

	dir = filepath.Join(c.baseDir, uuid.New().String())
	if err := extractAll(bundle, dir); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	c.mu.Lock()
	c.entries = append([]entry{{hash: hash, dir: dir}}, c.entries...)
	var evicted []string
	for len(c.entries) > c.capacity {
		last := c.entries[len(c.entries)-1]
		evicted = append(evicted, last.dir)
		c.entries = c.entries[:len(c.entries)-1]
	}
	c.mu.Unlock()
	// Eviction disposes of the directory, not just the index entry.
	for _, d := range evicted {
		if err := os.RemoveAll(d); err != nil {
			logging.Warningf(ctx, "Failed to remove evicted extraction %s: %s", d, err)
		}
	}

	return resolvePart(dir, bundle, part)
}

// Close removes every cached extraction and the cache's base
// directory, best effort in bounded parallel.  The first failure is
// reported; the rest of the removals still run.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()

	err := parallel.WorkPool(4, func(work chan<- func() error) {
		for _, e := range entries {
			e := e
			work <- func() error {
				return os.RemoveAll(e.dir)
			}
		}
	})
	if rmErr := os.RemoveAll(c.baseDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

func (c *Cache) lookupLocked(hash string) (string, bool) {
	for i, e := range c.entries {
		if e.hash == hash {
			c.entries = append([]entry{e}, append(c.entries[:i:i], c.entries[i+1:]...)...)
			return e.dir, true
		}
	}
	return "", false
}

func (c *Cache) dropLocked(hash string) {
	for i, e := range c.entries {
		if e.hash == hash {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return
		}
	}
}

func resolvePart(dir, bundle, part string) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(part))
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", &PartNotFoundError{Bundle: bundle, Part: part}
		}
		return "", errors.WrapIf(err, "resolve part %s of %s", part, bundle)
	}
	return p, nil
}

func extractAll(bundle, dir string) error {
	r, err := zip.OpenReader(bundle)
	if err != nil {
		return errors.WrapIf(err, "open bundle %s", bundle)
	}
	defer r.Close()
	for _, f := range r.File {
		if err := extractFile(f, dir); err != nil {
			return errors.WrapIf(err, "extract bundle %s", bundle)
		}
	}
	return nil
}

func extractFile(f *zip.File, dir string) error {
	if strings.Contains(f.Name, "..") {
		return errors.Reason("refusing to extract %q outside the bundle root", f.Name)
	}
	dest := filepath.Join(dir, filepath.FromSlash(f.Name))
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	// Carry only the executable bit, like a deterministic archive.
	mode := os.FileMode(0644)
	if f.Mode()&0111 != 0 {
		mode = 0755
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
