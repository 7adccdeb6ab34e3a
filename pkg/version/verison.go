// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	version     string
	buildCommit string
	buildTime   string
	telemetry   string
)

func telemetryOn() bool {
	switch telemetry {
	case "true", "yes", "on", "1":
		return true
	}
	return false
}

// GetVersionString returns a standard version header
func GetVersionString() string {
	return fmt.Sprintf("%s %v (%s), built %v", filepath.Base(os.Args[0]), version, buildCommit, buildTime)
}

func GetBuildCommit() string {
	return buildCommit
}

// GetVersion returns the semver compatible version number
func GetVersion() string {
	return version
}

// GetTelemeryUserAgent returns the User-Agent sent to remote object-storage
// backends (S3, GCS) when telemetry is enabled.
func GetTelemeryUserAgent() string {
	if u, err := Uname(); err == nil {
		return fmt.Sprintf("josh-filter/%s (%s; %s; %s)", version, u.Name, u.Machine, u.Release)
	}
	return "josh-filter/" + version
}

func GetUserAgent() string {
	if telemetryOn() {
		return GetTelemeryUserAgent()
	}
	return "josh-filter/" + version
}

// GetBuildTime returns the time at which the build took place
func GetBuildTime() string {
	return buildTime
}
