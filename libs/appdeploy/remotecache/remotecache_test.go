// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package remotecache

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"

	"infra/libs/appdeploy/adb"
	"infra/libs/appdeploy/fingerprint"
)

const cacheDir = "/data/local/tmp/appdeploy_cache"

// eventually polls cond for a short while; the detached LRU touch has
// no completion signal to wait on.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestPlace(t *testing.T) {
	Convey("Given a fake device and local packages", t, func() {
		ctx := context.Background()
		tempDir, err := ioutil.TempDir("", "remotecache_test")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(tempDir) })

		write := func(name, content string) string {
			p := filepath.Join(tempDir, name)
			So(ioutil.WriteFile(p, []byte(content), 0644), ShouldBeNil)
			return p
		}
		hash := func(p string) string {
			h, err := fingerprint.File(p)
			So(err, ShouldBeNil)
			return h
		}

		conn := adb.NewFakeConn()
		c := New(conn, cacheDir, 2)

		Convey("first placement creates the directory and pushes", func() {
			apk := write("a.apk", "contents a")
			remote, err := c.Place(ctx, apk, nil)
			So(err, ShouldBeNil)
			So(remote, ShouldEqual, cacheDir+"/"+hash(apk)+".apk")
			So(conn.Pushes(), ShouldHaveLength, 1)
			So(conn.Listing(cacheDir), ShouldResemble, []string{hash(apk) + ".apk"})
		})

		Convey("equal contents transfer at most once", func() {
			a := write("a.apk", "same bytes")
			b := write("b.apk", "same bytes")
			ra, err := c.Place(ctx, a, nil)
			So(err, ShouldBeNil)
			rb, err := c.Place(ctx, b, nil)
			So(err, ShouldBeNil)
			So(rb, ShouldEqual, ra)
			So(conn.Pushes(), ShouldHaveLength, 1)

			Convey("and the hit bumps the remote timestamp asynchronously", func() {
				So(eventually(func() bool { return len(conn.Touched()) == 1 }), ShouldBeTrue)
				So(conn.Touched()[0], ShouldEqual, ra)
			})
		})

		Convey("the listing is authoritative over process memory", func() {
			apk := write("a.apk", "contents a")
			_, err := c.Place(ctx, apk, nil)
			So(err, ShouldBeNil)
			// Someone else cleans the device directory behind our back.
			So(conn.RemoveFiles(ctx, cacheDir+"/"+hash(apk)+".apk"), ShouldBeNil)
			_, err = c.Place(ctx, apk, nil)
			So(err, ShouldBeNil)
			So(conn.Pushes(), ShouldHaveLength, 2)
		})

		Convey("eviction removes the least recently used entries first", func() {
			a := write("a.apk", "aaa")
			b := write("b.apk", "bbb")
			d := write("d.apk", "ddd")
			_, err := c.Place(ctx, a, nil)
			So(err, ShouldBeNil)
			_, err = c.Place(ctx, b, nil)
			So(err, ShouldBeNil)
			_, err = c.Place(ctx, d, nil)
			So(err, ShouldBeNil)
			So(conn.Listing(cacheDir), ShouldResemble, []string{
				hash(d) + ".apk", hash(b) + ".apk",
			})
			So(conn.Removed(), ShouldResemble, []string{cacheDir + "/" + hash(a) + ".apk"})
		})

		Convey("retained keys survive eviction", func() {
			c := New(conn, cacheDir, 1)
			a := write("a.apk", "aaa")
			b := write("b.apk", "bbb")
			_, err := c.Place(ctx, a, nil)
			So(err, ShouldBeNil)
			_, err = c.Place(ctx, b, stringset.NewFromSlice(hash(a)))
			So(err, ShouldBeNil)
			So(conn.Listing(cacheDir), ShouldResemble, []string{
				hash(b) + ".apk", hash(a) + ".apk",
			})
		})

		Convey("a failed listing propagates to the caller", func() {
			conn.ListDirectoryFunc = func(string) (string, error) {
				return "", errors.Reason("device unreachable")
			}
			apk := write("a.apk", "contents a")
			_, err := c.Place(ctx, apk, nil)
			So(err, ShouldNotBeNil)
			So(conn.Pushes(), ShouldBeEmpty)
		})
	})
}

func TestClear(t *testing.T) {
	Convey("Clear removes every cached entry", t, func() {
		ctx := context.Background()
		tempDir, err := ioutil.TempDir("", "remotecache_test")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(tempDir) })

		apk := filepath.Join(tempDir, "a.apk")
		So(ioutil.WriteFile(apk, []byte("aaa"), 0644), ShouldBeNil)

		conn := adb.NewFakeConn()
		c := New(conn, cacheDir, 0)
		_, err = c.Place(ctx, apk, nil)
		So(err, ShouldBeNil)
		So(c.Clear(ctx), ShouldBeNil)
		So(conn.Listing(cacheDir), ShouldBeEmpty)

		Convey("and a later placement pushes again", func() {
			_, err := c.Place(ctx, apk, nil)
			So(err, ShouldBeNil)
			So(conn.Pushes(), ShouldHaveLength, 2)
		})
	})
}
