package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvPort        = "PORT"
	EnvStatePath   = "GHBRIDGE_STATE_PATH"
	EnvStateDriver = "GHBRIDGE_STATE_DRIVER"
	EnvDatabaseURL = "DATABASE_URL"
	EnvLogLevel    = "GHBRIDGE_LOG_LEVEL"
	EnvServerToken = "GHBRIDGE_SERVER_TOKEN"
)

// LoadDotenv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get(EnvGitHubToken); v != "" {
		cfg.GitHub.Token = v
	}
	if v := get(EnvPort); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := get(EnvServerToken); v != "" {
		cfg.Server.Token = v
	}
	if v := get(EnvStateDriver); v != "" {
		cfg.State.Driver = v
	}
	if v := get(EnvStatePath); v != "" {
		cfg.State.Path = v
	}
	if v := get(EnvDatabaseURL); v != "" && cfg.State.DSN == "" {
		cfg.State.DSN = v
	}
	if v := get(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}
