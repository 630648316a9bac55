// Package buildinfo carries version metadata stamped at build time via
// -ldflags "-X github.com/gauntletci/gauntlet/internal/buildinfo.Version=...".
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("gauntlet %s (commit %s, built %s)", Version, Commit, Date)
}
