// Package config resolves IMI_HOME and loads the on-disk config.toml that
// governs sync propagation, git defaults, and presence monitoring.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SyncMode controls how propagate_sync materializes a file in a target worktree.
type SyncMode string

const (
	SyncModeSymlink SyncMode = "symlink"
	SyncModeCopy    SyncMode = "copy"
)

// SyncConfig configures the Filesystem Layout's sync-file propagation.
type SyncConfig struct {
	Files []string `toml:"files"`
	Mode  SyncMode `toml:"mode"`
}

// GitConfig configures git-level defaults used by the Git Worktree Driver.
type GitConfig struct {
	DefaultRemote string `toml:"default_remote"`
	FetchDepth    int    `toml:"fetch_depth"`
}

// MonitoringConfig configures optional external-integration presence files.
type MonitoringConfig struct {
	PresenceEnabled bool `toml:"presence_enabled"`
}

// ActivityConfig configures the audit log's retention policy.
type ActivityConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// Config is the parsed contents of $IMI_HOME/config.toml.
type Config struct {
	Sync       SyncConfig       `toml:"sync"`
	Git        GitConfig        `toml:"git"`
	Monitoring MonitoringConfig `toml:"monitoring"`
	Activity   ActivityConfig   `toml:"activity"`
}

// Default returns the configuration used when no config.toml exists yet.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			Files: []string{".env", ".envrc"},
			Mode:  SyncModeSymlink,
		},
		Git: GitConfig{
			DefaultRemote: "origin",
			FetchDepth:    0,
		},
		Monitoring: MonitoringConfig{
			PresenceEnabled: false,
		},
		Activity: ActivityConfig{
			RetentionDays: 90,
		},
	}
}

// Home resolves IMI_HOME: the env var if set, otherwise the platform config
// directory's "imi" subdirectory.
func Home() (string, error) {
	if v := os.Getenv("IMI_HOME"); v != "" {
		return v, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "imi"), nil
}

// Path returns the absolute path to config.toml under IMI_HOME.
func Path() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.toml"), nil
}

// DBPath returns the absolute path to the registry database under IMI_HOME.
func DBPath() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "registry.db"), nil
}

// Load reads config.toml, returning Default() (without creating the file) if
// it does not exist yet. Use EnsureHome + Save during init to create it.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureHome creates IMI_HOME (and its parents) if missing.
func EnsureHome() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", err
	}
	return home, nil
}

// Save writes cfg to config.toml atomically (temp file + rename), creating
// IMI_HOME if needed.
func Save(cfg *Config) error {
	if _, err := EnsureHome(); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// IdentityToken returns IMI_IDENTITY_TOKEN, used as the owner_id for
// activity rows and presence files when no explicit owner is supplied.
func IdentityToken() string {
	if v := os.Getenv("IMI_IDENTITY_TOKEN"); v != "" {
		return v
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

// DefaultBranchFallback returns IMI_DEFAULT_BRANCH_NAME, or "main" if unset.
func DefaultBranchFallback() string {
	if v := os.Getenv("IMI_DEFAULT_BRANCH_NAME"); v != "" {
		return v
	}
	return "main"
}
