// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fingerprint computes stable content identities for local
// files.  Two files with the same fingerprint are interchangeable
// regardless of their path or name, which is what makes fingerprints
// usable as cache keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"go.chromium.org/luci/common/errors"
)

// File returns the lowercase hex SHA-256 digest of the file's contents.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.WrapIf(err, "fingerprint %s", path)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WrapIf(err, "fingerprint %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
