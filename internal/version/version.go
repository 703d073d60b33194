// Package version carries build metadata set through -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func String() string {
	return fmt.Sprintf("fluxgen version=%s commit=%s build_date=%s go=%s", Version, Commit, BuildDate, runtime.Version())
}

// UserAgent is sent on every provider request.
func UserAgent() string {
	return "fluxgen/" + Version
}
