package utils

import (
	"os"
	"runtime"
)

// IsElevated reports whether the process runs as root. Windows is never
// treated as elevated.
func IsElevated() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	return os.Geteuid() == 0
}
