// Package config exposes build information stamped in at link time:
//
//	go build -ldflags "-X github.com/good-yellow-bee/riskline/pkg/config.Version=v1.2.0"
package config

import (
	"fmt"
	"log/slog"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// LogValue groups the build fields for the startup log line.
func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("built", b.BuildTime),
	)
}

// VersionString returns a one-line version banner.
func VersionString() string {
	b := GetBuildInfo()
	return fmt.Sprintf("riskline %s (%s) built at %s with %s for %s",
		b.Version, b.Commit, b.BuildTime, b.GoVersion, b.Platform)
}
