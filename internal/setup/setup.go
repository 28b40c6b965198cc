// Package setup resolves the filesystem layout alforje works in: where the
// configuration lives, where plugin repositories are checked out, and where
// the generated loader script and activation links go.
package setup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alforje/alforje/internal/tree"
)

// Paths is the resolved filesystem layout for one run.
type Paths struct {
	// ConfigFile is the declarative plugin configuration, alforje.yaml.
	ConfigFile string
	// DataDir is where remote plugin repositories are checked out,
	// usually ~/.local/share/alforje.
	DataDir string
	// AutoloadDir is Kakoune's autoload directory.
	AutoloadDir string
	// PluginsDir is the alforje subdirectory inside autoload holding one
	// activation symlink per enabled plugin. Recreated on every run.
	PluginsDir string
	// ScriptPath is the generated loader script, alforje.kak.
	ScriptPath string
	// StatePath is the SQLite file recording what is installed.
	StatePath string
	// LockPath guards against two concurrent alforje runs.
	LockPath string
}

// Resolve builds Paths from the process environment.
func Resolve() (Paths, error) {
	return ResolveEnv(os.Getenv)
}

// ResolveEnv builds Paths using getenv for environment lookups, honoring
// XDG_CONFIG_HOME and XDG_DATA_HOME with the usual fallbacks under HOME.
func ResolveEnv(getenv func(string) string) (Paths, error) {
	home := getenv("HOME")
	if home == "" {
		return Paths{}, fmt.Errorf("HOME environment variable is not set")
	}

	configDir := getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = filepath.Join(home, ".config")
	}

	dataDir := getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(home, ".local", "share")
	}
	dataDir = filepath.Join(dataDir, "alforje")

	autoloadDir := filepath.Join(configDir, "kak", "autoload")
	pluginsDir := filepath.Join(autoloadDir, "alforje")

	return Paths{
		ConfigFile:  filepath.Join(configDir, "alforje.yaml"),
		DataDir:     dataDir,
		AutoloadDir: autoloadDir,
		PluginsDir:  pluginsDir,
		ScriptPath:  filepath.Join(pluginsDir, "alforje.kak"),
		StatePath:   filepath.Join(dataDir, "state.db"),
		LockPath:    filepath.Join(dataDir, "alforje.lock"),
	}, nil
}

// EnsureDirs prepares the directories a sync run writes into. The plugins
// directory is removed and recreated so activation links from plugins no
// longer configured do not linger.
func (p Paths) EnsureDirs() error {
	if err := os.MkdirAll(p.AutoloadDir, 0o755); err != nil {
		return fmt.Errorf("create autoload directory: %w", err)
	}

	if _, err := os.Lstat(p.PluginsDir); err == nil {
		if err := os.RemoveAll(p.PluginsDir); err != nil {
			return fmt.Errorf("clear plugins directory: %w", err)
		}
	}
	if err := os.MkdirAll(p.PluginsDir, 0o755); err != nil {
		return fmt.Errorf("create plugins directory: %w", err)
	}

	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// RepoPath is the directory holding a plugin's code: the declared directory
// for local plugins, a checkout under DataDir for remote ones.
func (p Paths) RepoPath(name string, loc tree.Location) string {
	if loc.Local {
		return expandHome(loc.Raw)
	}
	return filepath.Join(p.DataDir, name)
}

// LinkPath is where the activation symlink for a plugin goes.
func (p Paths) LinkPath(name string) string {
	return filepath.Join(p.PluginsDir, name)
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
