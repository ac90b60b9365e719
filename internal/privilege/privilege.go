// Package privilege provides utilities for detecting the privilege level the
// library runs at, used to produce actionable attach-failure messages.
package privilege

import (
	"os"
)

// IsElevated reports whether the process runs with root privileges.
// Attaching to processes owned by other users generally requires this.
func IsElevated() bool {
	return os.Geteuid() == 0
}

// RunningUnderSudo reports whether the process was started through sudo.
func RunningUnderSudo() bool {
	return os.Getenv("SUDO_USER") != ""
}
