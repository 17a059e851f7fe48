// Package version reports build metadata for the shopchat binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Overridden with -ldflags "-X github.com/soyeahso/shopchat/internal/version.Version=1.4.0".
// Commit and Date fall back to the VCS stamps Go embeds in module builds.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var stampOnce sync.Once

// stamp fills Commit and Date from debug.ReadBuildInfo when ldflags left
// them unset.
func stamp() {
	stampOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && Commit == "unknown":
				Commit = s.Value
			case s.Key == "vcs.time" && Date == "unknown":
				Date = s.Value
			}
		}
	})
}

// Info returns the one-line version banner.
func Info() string {
	stamp()
	return fmt.Sprintf("shopchat %s (commit: %s, built: %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent on outbound requests to the model API and tool servers.
func UserAgent() string {
	return "shopchat/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
