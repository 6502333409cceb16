// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package deployer

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"infra/libs/appdeploy/bundlecache"
)

func writeBundle(t *testing.T, dir string, parts map[string]string) string {
	t.Helper()
	p := filepath.Join(dir, "app.apks")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for part, content := range parts {
		dst, err := w.Create(part)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := dst.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDeployBundleInstallsAllParts(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, &fakeReader{candidate: info("com.example.app", 2, "2.0")})
	bundles, err := bundlecache.New(2)
	if err != nil {
		t.Fatal(err)
	}
	defer bundles.Close()
	e.deployer.Bundles = bundles
	// The fr split is absent from the bundle and must be skipped, not
	// fail the deployment.
	e.deployer.Options.Languages = []string{"en", "fr"}

	bundle := writeBundle(t, filepath.Dir(e.apk), map[string]string{
		bundlecache.BasePart:           "base bytes",
		bundlecache.LanguagePart("en"): "english bytes",
	})
	res, err := e.deployer.Deploy(context.Background(), bundle)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != Installed {
		t.Errorf("got action %s, want %s", res.Action, Installed)
	}

	calls := e.installCalls("install-multiple")
	if len(calls) != 1 {
		t.Fatalf("got %d install-multiple calls, want 1", len(calls))
	}
	var remotes []string
	for _, arg := range calls[0][1:] {
		if !strings.HasPrefix(arg, "-") {
			remotes = append(remotes, arg)
		}
	}
	if len(remotes) != 2 {
		t.Fatalf("got %d parts in install-multiple, want 2: %v", len(remotes), calls[0])
	}
	for _, r := range remotes {
		if !strings.HasPrefix(r, cacheDir+"/") {
			t.Errorf("part %s was not placed through the package cache", r)
		}
	}
	// Both parts placed, both still on the device after eviction.
	if got := len(e.conn.Pushes()); got != 2 {
		t.Errorf("got %d pushes, want 2", got)
	}
	if got := len(e.conn.Listing(cacheDir)); got != 2 {
		t.Errorf("got %d cached entries, want 2", got)
	}
}
