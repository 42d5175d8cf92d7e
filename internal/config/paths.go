package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment overrides for every file xgate touches.
const (
	EnvConfig = "XGATE_CONFIG"
	EnvHosts  = "XGATE_HOSTS_PATH"
	EnvState  = "XGATE_STATE"
	EnvLog    = "XGATE_LOG"
)

// Paths holds the resolved file locations.
type Paths struct {
	Config string
	Hosts  string
	State  string
	Log    string
}

// ResolvePaths applies env overrides, then OS defaults.
func ResolvePaths() Paths {
	return Paths{
		Config: ConfigPath(),
		Hosts:  HostsPath(),
		State:  StatePath(),
		Log:    LogPath(),
	}
}

// ConfigPath returns the per-user config file location.
func ConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return ExpandHome(p)
	}
	home := RealUserHome()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "x-gate", "config.json")
	case "linux":
		return filepath.Join(home, ".config", "x-gate", "config.json")
	default:
		return filepath.Join(home, ".x-gate", "config.json")
	}
}

// HostsPath returns the hosts file to manage.
func HostsPath() string {
	if p := os.Getenv(EnvHosts); p != "" {
		return ExpandHome(p)
	}
	return "/etc/hosts"
}

// StatePath returns the daemon state snapshot location.
func StatePath() string {
	if p := os.Getenv(EnvState); p != "" {
		return ExpandHome(p)
	}
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Application Support/x-gate/state.json"
	case "linux":
		return "/var/run/x-gate/state.json"
	default:
		return filepath.Join(RealUserHome(), ".x-gate", "state.json")
	}
}

// LogPath returns the daemon log file location.
func LogPath() string {
	if p := os.Getenv(EnvLog); p != "" {
		return ExpandHome(p)
	}
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Logs/x-term/xgate-daemon.log"
	case "linux":
		return "/var/log/xgate/xgate-daemon.log"
	default:
		return filepath.Join(RealUserHome(), ".x-gate", "logs", "xgate-daemon.log")
	}
}

// RealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so SUDO_USER and then the
// console owner are consulted.
func RealUserHome() string {
	if os.Geteuid() == 0 {
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			if u, err := user.Lookup(sudoUser); err == nil {
				return u.HomeDir
			}
		}
		if home := consoleUserHome(); home != "" {
			return home
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// ExpandHome expands a leading ~ to the real user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return RealUserHome()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(RealUserHome(), path[2:])
	}
	return path
}
