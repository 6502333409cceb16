// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package flagx contains extra flag.Value implementations for the
// appdeploy tool.
package flagx

import (
	"flag"
	"strings"
)

// commaList is an implementation of flag.Value for parsing a
// comma-separated list of strings.
type commaList struct {
	s *[]string
}

// NewCommaList returns a flag.Value that parses a comma-separated
// list into the given slice.
func NewCommaList(s *[]string) flag.Value {
	return commaList{s: s}
}

// String implements the flag.Value interface.
func (f commaList) String() string {
	if f.s == nil {
		return ""
	}
	return strings.Join(*f.s, ",")
}

// Set implements the flag.Value interface.
func (f commaList) Set(s string) error {
	if s == "" {
		*f.s = nil
		return nil
	}
	*f.s = strings.Split(s, ",")
	return nil
}
