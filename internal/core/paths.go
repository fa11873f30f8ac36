package core

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// RuntimeDirName is the directory created under the runtime base (XDG_RUNTIME_DIR
	// or its fallback) that holds the conductor's listening socket and any
	// per-worker socket directories.
	RuntimeDirName = "julia-daemon"

	// ConductorSocketName is the conductor's main listening socket file name.
	ConductorSocketName = "conductor.sock"

	// ConfigDirName is the directory under XDG_CONFIG_HOME holding the optional
	// HCL config file.
	ConfigDirName = "jdaemon"

	// ConfigFileName is the optional HCL config file read by the conductor.
	ConfigFileName = "config.hcl"
)

// RuntimeDir returns the base directory used for transient Unix sockets:
// $XDG_RUNTIME_DIR, falling back to /run/user/<uid> per spec.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return fmt.Sprintf("/run/user/%d", os.Getuid())
}

// ConductorSocketPath returns the main socket endpoint: $JULIA_DAEMON_SERVER
// if set, otherwise the default path under RuntimeDir().
func ConductorSocketPath() string {
	if v := os.Getenv("JULIA_DAEMON_SERVER"); v != "" {
		return v
	}
	return filepath.Join(RuntimeDir(), RuntimeDirName, ConductorSocketName)
}

// ConductorRuntimeDir returns the directory that owns the conductor's socket
// file; the conductor creates it before binding the socket.
func ConductorRuntimeDir() string {
	return filepath.Dir(ConductorSocketPath())
}

// ConfigPath returns the path to the optional HCL config file.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDirName, ConfigFileName)
}

// WorkerRuntimeDir returns a fresh per-worker directory for the stdio and
// signals listening sockets, keyed by the worker's monotonic id.
func WorkerRuntimeDir(workerID uint32) string {
	return filepath.Join(RuntimeDir(), RuntimeDirName, "workers", fmt.Sprintf("%d", workerID))
}

// ExpandUser expands a leading "~" to the current user's home directory.
func ExpandUser(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if len(path) > 1 && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
