// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package remotecache keeps already-uploaded packages in a fixed
// directory on the device so repeated deployments of the same bytes
// skip the transfer.
//
// The remote directory is the authoritative state: other processes,
// reboots and manual cleanup can all mutate it, so the in-memory index
// is rebuilt from a live listing on every access instead of being
// trusted.  Entries are named <fingerprint><ext>, and the listing's
// own recency order (ls -t) drives LRU eviction.  Cross-process
// coordination is out of scope: the cache assumes it is the only
// writer.
package remotecache

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra/libs/appdeploy/adb"
	"infra/libs/appdeploy/fingerprint"
)

// DefaultCapacity is the entry limit used when no capacity is given.
const DefaultCapacity = 10

// touchTimeout bounds the detached LRU bump of a cache hit.
const touchTimeout = 30 * time.Second

// Cache is a bounded package cache in one device directory, owned by
// one device connection.
type Cache struct {
	conn     adb.Conn
	dir      string
	capacity int

	mu      sync.Mutex
	entries []entry // recency order, most recent first
}

type entry struct {
	hash string
	name string
}

// New returns a Cache over the given device directory.  A non-positive
// capacity selects DefaultCapacity.
func New(conn adb.Conn, dir string, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{conn: conn, dir: dir, capacity: capacity}
}

// Dir returns the device directory the cache lives in.
func (c *Cache) Dir() string {
	return c.dir
}

// Place ensures the file's contents are present on the device and
// returns the remote path.  Bytes already present are not transferred
// again; a hit gets its remote timestamp bumped by a detached
// best-effort touch.  After placement, least-recently-used entries
// beyond capacity are evicted from the device, except entries whose
// fingerprints are in retain (parts of a multi-part install that must
// survive until the install command runs).
//
// Concurrent Place calls for the same contents may both transfer; both
// write the same destination path, so the race is benign.
func (c *Cache) Place(ctx context.Context, localFile string, retain stringset.Set) (string, error) {
	hash, err := fingerprint.File(localFile)
	if err != nil {
		return "", err
	}
	names, err := c.listRemote(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.rebuildLocked(names)
	name, hit := c.lookupLocked(hash)
	c.mu.Unlock()

	if hit {
		remote := path.Join(c.dir, name)
		c.touchDetached(ctx, remote)
		c.evict(ctx, retainWith(retain, hash))
		return remote, nil
	}

	name = hash + filepath.Ext(localFile)
	remote := path.Join(c.dir, name)
	if err := c.conn.Push(ctx, localFile, remote); err != nil {
		return "", errors.WrapIf(err, "place %s in package cache", localFile)
	}
	c.mu.Lock()
	c.insertLocked(entry{hash: hash, name: name})
	c.mu.Unlock()
	c.evict(ctx, retainWith(retain, hash))
	return remote, nil
}

// Clear removes every cached package from the device and resets the
// index.  Used to recover from insufficient device storage.
func (c *Cache) Clear(ctx context.Context) error {
	names, err := c.listRemote(ctx)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		paths := make([]string, len(names))
		for i, n := range names {
			paths[i] = path.Join(c.dir, n)
		}
		if err := c.conn.RemoveFiles(ctx, paths...); err != nil {
			return errors.WrapIf(err, "clear package cache %s", c.dir)
		}
	}
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
	return nil
}

// listRemote returns the authoritative directory listing, newest
// first.  A missing directory is created and reported as an empty
// cache; any other listing failure propagates so the caller can decide
// to bypass caching for the attempt.
func (c *Cache) listRemote(ctx context.Context) ([]string, error) {
	out, err := c.conn.ListDirectory(ctx, c.dir)
	if err != nil {
		if adb.IsMissingDirectory(err) {
			if err := c.conn.MakeDirectory(ctx, c.dir); err != nil {
				return nil, errors.WrapIf(err, "create package cache %s", c.dir)
			}
			return nil, nil
		}
		return nil, errors.WrapIf(err, "list package cache %s", c.dir)
	}
	return strings.Fields(out), nil
}

// rebuildLocked replaces the index with the listing's content.  Stale
// in-memory entries disappear and foreign files become evictable
// entries.
func (c *Cache) rebuildLocked(names []string) {
	entries := make([]entry, 0, len(names))
	for _, n := range names {
		entries = append(entries, entry{hash: hashOfName(n), name: n})
	}
	c.entries = entries
}

func (c *Cache) lookupLocked(hash string) (name string, ok bool) {
	for i, e := range c.entries {
		if e.hash == hash {
			c.promoteLocked(i)
			return e.name, true
		}
	}
	return "", false
}

func (c *Cache) insertLocked(e entry) {
	for i, old := range c.entries {
		if old.name == e.name {
			c.promoteLocked(i)
			return
		}
	}
	c.entries = append([]entry{e}, c.entries...)
}

func (c *Cache) promoteLocked(i int) {
	e := c.entries[i]
	c.entries = append([]entry{e}, append(c.entries[:i:i], c.entries[i+1:]...)...)
}

// evict removes least-recently-used entries beyond capacity from the
// device in one batched call.  Eviction failure does not fail the
// placement that triggered it; the next listing re-syncs the index.
func (c *Cache) evict(ctx context.Context, keep stringset.Set) {
	c.mu.Lock()
	var victims []entry
	excess := len(c.entries) - c.capacity
	for i := len(c.entries) - 1; i >= 0 && len(victims) < excess; i-- {
		if keep.Has(c.entries[i].hash) {
			continue
		}
		victims = append(victims, c.entries[i])
	}
	c.mu.Unlock()
	if len(victims) == 0 {
		return
	}
	paths := make([]string, len(victims))
	for i, v := range victims {
		paths[i] = path.Join(c.dir, v.name)
	}
	if err := c.conn.RemoveFiles(ctx, paths...); err != nil {
		logging.Warningf(ctx, "Failed to evict %d package cache entries: %s", len(victims), err)
		return
	}
	c.mu.Lock()
	for _, v := range victims {
		c.dropLocked(v.name)
	}
	c.mu.Unlock()
}

func (c *Cache) dropLocked(name string) {
	for i, e := range c.entries {
		if e.name == name {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return
		}
	}
}

// touchDetached bumps a remote entry's timestamp without blocking the
// caller.  Failure to bump only costs LRU accuracy, so it is logged
// and never awaited.
func (c *Cache) touchDetached(ctx context.Context, remote string) {
	tctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	go func() {
		defer cancel()
		if err := c.conn.TouchFile(tctx, remote); err != nil {
			logging.Warningf(ctx, "Failed to bump package cache entry %s: %s", remote, err)
		}
	}()
}

func hashOfName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func retainWith(retain stringset.Set, hash string) stringset.Set {
	keep := stringset.New(retain.Len() + 1)
	retain.Iter(func(h string) bool {
		keep.Add(h)
		return true
	})
	keep.Add(hash)
	return keep
}
