package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// systemConfigDirs are searched when running privileged, keyed by GOOS
var systemConfigDirs = map[string]string{
	"linux":   "/etc/landregistry",
	"darwin":  "/usr/local/etc/landregistry",
	"windows": `%PROGRAMDATA%\landregistry`,
}

// ConfigDirs returns the directories searched for config.yaml, most specific
// first. A privileged process does not read per-user configuration.
func ConfigDirs(privileged bool) []string {
	dirs := []string{"."}

	if !privileged {
		if dir, err := os.UserConfigDir(); err == nil {
			dirs = append(dirs, filepath.Join(dir, "landregistry"))
		}
	}

	if dir, ok := systemConfigDirs[runtime.GOOS]; ok {
		dirs = append(dirs, os.ExpandEnv(expandWindowsVars(dir)))
	} else {
		dirs = append(dirs, systemConfigDirs["linux"])
	}
	return dirs
}

// expandWindowsVars rewrites %VAR% references to $VAR for os.ExpandEnv
func expandWindowsVars(path string) string {
	out := make([]byte, 0, len(path))
	open := false
	for i := 0; i < len(path); i++ {
		if path[i] != '%' {
			out = append(out, path[i])
			continue
		}
		if open {
			out = append(out, '}')
		} else {
			out = append(out, '$', '{')
		}
		open = !open
	}
	return string(out)
}
