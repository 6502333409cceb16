// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pkgver

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func v(code int64, name string) Version {
	return Version{Code: code, CodeKnown: true, Name: name}
}

func nameOnly(name string) Version {
	return Version{Name: name}
}

func TestClassify(t *testing.T) {
	Convey("Classify", t, func() {
		Convey("absent installed package", func() {
			So(Classify(v(5, "1.0"), Version{}, false), ShouldEqual, NotInstalled)
		})

		Convey("both version codes known", func() {
			So(Classify(v(1, "1.0"), v(2, "2.0"), true), ShouldEqual, NewerVersionInstalled)
			So(Classify(v(2, "2.0"), v(1, "1.0"), true), ShouldEqual, OlderVersionInstalled)

			Convey("code tie falls through to names", func() {
				So(Classify(v(5, "1.0"), v(5, "1.0"), true), ShouldEqual, SameVersionInstalled)
				So(Classify(v(5, "1.1"), v(5, "1.0"), true), ShouldEqual, NewerVersionInstalled)
				So(Classify(v(5, "1.0"), v(5, "1.1"), true), ShouldEqual, NewerVersionInstalled)
				So(Classify(v(5, ""), v(5, "1.0"), true), ShouldEqual, SameVersionInstalled)
				So(Classify(v(5, "1.0"), v(5, ""), true), ShouldEqual, SameVersionInstalled)
			})
		})

		Convey("either version code missing compares names alone", func() {
			So(Classify(nameOnly("1.0"), v(7, "2.0"), true), ShouldEqual, NewerVersionInstalled)
			So(Classify(v(7, "2.0"), nameOnly("1.0"), true), ShouldEqual, OlderVersionInstalled)
			So(Classify(nameOnly("3.1"), nameOnly("3.1"), true), ShouldEqual, SameVersionInstalled)
		})

		Convey("no usable metadata at all", func() {
			So(Classify(nameOnly(""), nameOnly(""), true), ShouldEqual, Unknown)
			So(Classify(v(1, ""), nameOnly(""), true), ShouldEqual, Unknown)
		})
	})
}

func TestCompareNames(t *testing.T) {
	Convey("CompareNames", t, func() {
		cases := []struct {
			a, b string
			cmp  int
		}{
			{"1.0", "1.0", 0},
			{"1.0", "1", 0},
			{"1.0.0", "1", 0},
			{"1.1", "1.0", 1},
			{"1.9", "1.10", -1},
			{"2.0", "1.9.9", 1},
			{"1.0-beta", "1.0", 1},
			{"1.0_2", "1.0.1", 1},
			{"1.0.alpha", "1.0.beta", -1},
			{"1.0.1", "1.0.rc", -1},
		}
		for _, c := range cases {
			cmp, ok := CompareNames(c.a, c.b)
			So(ok, ShouldBeTrue)
			So(cmp, ShouldEqual, c.cmp)
		}

		Convey("empty names are incomparable", func() {
			_, ok := CompareNames("", "1.0")
			So(ok, ShouldBeFalse)
			_, ok = CompareNames("1.0", "")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestInstallStateString(t *testing.T) {
	Convey("InstallState strings", t, func() {
		So(NotInstalled.String(), ShouldEqual, "not installed")
		So(InstallState(42).String(), ShouldEqual, "invalid install state")
	})
}
