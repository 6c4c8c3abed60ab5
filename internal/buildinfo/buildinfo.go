// Package buildinfo exposes the version stamped in with -ldflags and the
// process uptime.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Set with -ldflags "-X github.com/nugget/concierge/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var started = time.Now()

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Uptime    string `json:"uptime"`
}

// Current returns the build info with the uptime as of now.
func Current() Info {
	return Info{
		Version:   Version,
		GitCommit: shortCommit(GitCommit),
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Uptime:    Uptime().String(),
	}
}

// Uptime is the time since process start, to the second.
func Uptime() time.Duration {
	return time.Since(started).Truncate(time.Second)
}

// String is the one-line banner logged at startup and printed by
// `concierge version`.
func String() string {
	return fmt.Sprintf("Concierge %s (%s) built %s", Version, shortCommit(GitCommit), BuildTime)
}

// UserAgent is sent on every outbound HTTP request.
func UserAgent() string {
	return "concierge/" + Version + " (+" + runtime.GOOS + ")"
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
