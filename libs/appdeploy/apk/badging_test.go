// Copyright 2019 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package apk

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"infra/libs/appdeploy/adb"
	"infra/libs/appdeploy/pkgver"
)

const sampleBadging = `package: name='com.example.demo' versionCode='42' versionName='2.1.0' platformBuildVersionName=''
sdkVersion:'21'
application-label:'Demo'
`

const sampleDumpsys = `Packages:
  Package [com.example.demo] (81ad2c):
    userId=10123
    versionCode=41 minSdk=21 targetSdk=28
    versionName=2.0.9
    flags=[ HAS_CODE ALLOW_CLEAR_USER_DATA ]
`

func TestParseBadging(t *testing.T) {
	Convey("parseBadging", t, func() {
		Convey("reads name, code and version name", func() {
			info, err := parseBadging(sampleBadging)
			So(err, ShouldBeNil)
			So(info, ShouldResemble, Info{
				Package: "com.example.demo",
				Version: pkgver.Version{Code: 42, CodeKnown: true, Name: "2.1.0"},
			})
		})

		Convey("absent version fields stay absent", func() {
			info, err := parseBadging("package: name='com.example.demo' versionCode='' versionName=''")
			So(err, ShouldBeNil)
			So(info.Version.CodeKnown, ShouldBeFalse)
			So(info.Version.Name, ShouldEqual, "")
		})

		Convey("missing package name is an error", func() {
			_, err := parseBadging("application-label:'Demo'")
			So(err, ShouldNotBeNil)
		})

		Convey("malformed versionCode is an error", func() {
			_, err := parseBadging("package: name='a' versionCode='x1'")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseDumpsys(t *testing.T) {
	Convey("parseDumpsys", t, func() {
		Convey("reads installed version", func() {
			info, present := parseDumpsys("com.example.demo", sampleDumpsys)
			So(present, ShouldBeTrue)
			So(info, ShouldResemble, Info{
				Package: "com.example.demo",
				Version: pkgver.Version{Code: 41, CodeKnown: true, Name: "2.0.9"},
			})
		})

		Convey("no package record means not installed", func() {
			_, present := parseDumpsys("com.example.other", sampleDumpsys)
			So(present, ShouldBeFalse)
		})
	})
}

func TestInstalled(t *testing.T) {
	Convey("Installed reads dumpsys through the command channel", t, func() {
		ctx := context.Background()
		c := adb.NewFakeConn()
		c.ShellFunc = func(args ...string) (string, error) {
			So(args, ShouldResemble, []string{"dumpsys", "package", "com.example.demo"})
			return sampleDumpsys, nil
		}
		r := &BadgingReader{}
		info, present, err := r.Installed(ctx, c, "com.example.demo")
		So(err, ShouldBeNil)
		So(present, ShouldBeTrue)
		So(info.Version.Code, ShouldEqual, 41)
	})
}
