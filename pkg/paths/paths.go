// Package paths provides centralized path resolution for portkeeper's config,
// state and runtime files.
//
// Layout (XDG-style):
//
//	Config:  ~/.config/portkeeper/config.yaml      (override: PORTKEEPER_CONFIG_DIR)
//	State:   ~/.local/state/portkeeper/            (override: PORTKEEPER_STATE_DIR)
//	Runtime: $XDG_RUNTIME_DIR/portkeeper or /tmp/portkeeper-<uid>
//	                                               (override: PORTKEEPER_RUNTIME_DIR)
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	configDirOnce   sync.Once
	configDirCached string

	stateDirOnce   sync.Once
	stateDirCached string

	runtimeDirOnce   sync.Once
	runtimeDirCached string
)

// ConfigDir resolves the config directory.
// Priority: PORTKEEPER_CONFIG_DIR env > ~/.config/portkeeper/
func ConfigDir() string {
	configDirOnce.Do(func() {
		configDirCached = fromHome("PORTKEEPER_CONFIG_DIR", ".config", "portkeeper")
	})
	return configDirCached
}

// StateDir resolves the state directory holding the catalog and logs.
// Priority: PORTKEEPER_STATE_DIR env > ~/.local/state/portkeeper/
func StateDir() string {
	stateDirOnce.Do(func() {
		stateDirCached = fromHome("PORTKEEPER_STATE_DIR", ".local", "state", "portkeeper")
	})
	return stateDirCached
}

// RuntimeDir resolves the directory for the daemon socket, lock and pid file.
// Priority: PORTKEEPER_RUNTIME_DIR env > $XDG_RUNTIME_DIR/portkeeper > /tmp/portkeeper-<uid>
func RuntimeDir() string {
	runtimeDirOnce.Do(func() {
		switch {
		case os.Getenv("PORTKEEPER_RUNTIME_DIR") != "":
			runtimeDirCached = os.Getenv("PORTKEEPER_RUNTIME_DIR")
		case os.Getenv("XDG_RUNTIME_DIR") != "":
			runtimeDirCached = filepath.Join(os.Getenv("XDG_RUNTIME_DIR"), "portkeeper")
		default:
			runtimeDirCached = filepath.Join(os.TempDir(), fmt.Sprintf("portkeeper-%d", os.Getuid()))
		}
	})
	return runtimeDirCached
}

func fromHome(env string, elem ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, elem...)...)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// CatalogPath returns the full path to the persisted server catalog.
func CatalogPath() string {
	return StatePath("catalog.yaml")
}

// StatePath returns the full path to a state file (e.g. "daemon.log").
func StatePath(filename string) string {
	return filepath.Join(StateDir(), filename)
}

// LogDir returns the directory receiving output of servers started by portkeeper.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// SocketPath returns the daemon socket path.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "portkeeper.sock")
}

// PidPath returns the daemon pidfile path.
func PidPath() string {
	return filepath.Join(RuntimeDir(), "portkeeper.pid")
}

// LockPath returns the daemon single-instance lock path.
func LockPath() string {
	return filepath.Join(RuntimeDir(), "portkeeper.lock")
}

// EnsureConfigDir creates the config directory if it doesn't exist and returns its path.
func EnsureConfigDir() (string, error) {
	return ensure(ConfigDir(), 0755)
}

// EnsureStateDir creates the state directory if it doesn't exist and returns its path.
func EnsureStateDir() (string, error) {
	return ensure(StateDir(), 0755)
}

// EnsureRuntimeDir creates the runtime directory, private to the user.
func EnsureRuntimeDir() (string, error) {
	return ensure(RuntimeDir(), 0700)
}

func ensure(dir string, perm os.FileMode) (string, error) {
	if err := os.MkdirAll(dir, perm); err != nil {
		return "", fmt.Errorf("create dir %s: %w", dir, err)
	}
	return dir, nil
}

// ResetForTest clears cached values so tests can re-run resolution logic.
// Only use in tests.
func ResetForTest() {
	configDirOnce = sync.Once{}
	configDirCached = ""
	stateDirOnce = sync.Once{}
	stateDirCached = ""
	runtimeDirOnce = sync.Once{}
	runtimeDirCached = ""
}
