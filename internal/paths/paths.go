package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "buildplan"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/buildplan or /run/user/<uid>/buildplan
//	macOS:   ~/Library/Caches/buildplan/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(xdg.CacheHome, appName, "run")
}

// Default path to the Unix domain socket of the daemon.
//
//	Linux:   $XDG_RUNTIME_DIR/buildplan/buildplan.sock
func Socket() string {
	return filepath.Join(Runtime(), appName+".sock")
}

// Default path to the daemon PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/buildplan/buildplan.pid
func PIDFile() string {
	return filepath.Join(Runtime(), appName+".pid")
}

// Default path to the configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/buildplan/config.toml
//	macOS:   ~/Library/Application Support/buildplan/config.toml
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// Default directory for the exported image of a plan.
//
//	Linux:   $XDG_CACHE_HOME/buildplan/images/<name>
//	macOS:   ~/Library/Caches/buildplan/images/<name>
func Output(name string) string {
	return filepath.Join(xdg.CacheHome, appName, "images", name)
}
