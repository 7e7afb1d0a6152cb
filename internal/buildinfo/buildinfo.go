// Package buildinfo holds version metadata injected at build time.
package buildinfo

// Set via -ldflags "-X github.com/modoterra/jukedash/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
