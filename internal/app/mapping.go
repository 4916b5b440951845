package app

import (
	"fmt"
	"strings"
	"time"

	"ghbridge/internal/config"
	"ghbridge/internal/storage"
	"ghbridge/pkg/logx"
)

// mapStorageConfig works on the raw config so `ghbridge state` can read the
// store without a GitHub token.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.State
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "file", "json":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = "./ghbridge.db"
		}
		busy, err := config.ParseDurationOrDefault("state.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pg":
		dsn := strings.TrimSpace(sc.DSN)
		if dsn == "" {
			return storage.Config{}, fmt.Errorf("state.dsn is required when state.driver=%s", driver)
		}
		return storage.Config{Driver: "postgres", DSN: dsn}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown state.driver: %s", sc.Driver)
	}
}

func mapLogConfig(s config.Settings) logx.Config {
	return logx.Config{
		Level:   s.LogLevel,
		Console: s.LogConsole,
		File: logx.FileConfig{
			Enabled: s.LogFileEnabled,
			Path:    s.LogFilePath,
		},
	}
}
