// Package version carries build metadata stamped in with
// -ldflags "-X github.com/emergent-company/dualstore/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Current returns the stamped metadata. A binary built without ldflags falls
// back to the VCS revision recorded by the go tool, when there is one.
func Current() Build {
	b := Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if b.GitCommit != "unknown" {
		return b
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if len(s.Value) > 12 {
					s.Value = s.Value[:12]
				}
				b.GitCommit = s.Value
			case "vcs.time":
				if b.BuildTime == "unknown" {
					b.BuildTime = s.Value
				}
			}
		}
	}
	return b
}

func (b Build) String() string {
	return fmt.Sprintf("%s (%s, built %s, %s)", b.Version, b.GitCommit, b.BuildTime, b.GoVersion)
}
