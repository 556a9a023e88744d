package version

import (
	"fmt"
	"runtime"
)

var (
	// These variables are set during build time using ldflags.
	Version   = "dev"     // Default to "dev" if not set during build.
	GitCommit = "none"    // Default to "none" if not set during build.
	BuildDate = "unknown" // Default to "unknown" if not set during build.
)

// GetVersionInfo returns the multi-line version banner printed by the version command.
func GetVersionInfo() string {
	return fmt.Sprintf("Version: %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\n",
		Version, GitCommit, BuildDate, runtime.Version())
}
