// Package version provides build and version information for tableplan.
package version

// Version is the current release version of tableplan.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/kewei-lab/tableplan/internal/version.Version=x.y.z"
var Version = "1.0.0"
