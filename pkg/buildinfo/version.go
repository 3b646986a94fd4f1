// Package buildinfo holds the version stamped into the aggtree binary.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/vercel/turborepo-sub010/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/vercel/turborepo-sub010/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/vercel/turborepo-sub010/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/aggtree
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the semantic version, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

func init() {
	if Commit != "none" {
		return
	}
	// go install builds carry VCS data even without ldflags.
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				Commit = s.Value
			case "vcs.time":
				Date = s.Value
			}
		}
	}
}

// Template returns the --version template for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}
