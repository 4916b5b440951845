package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ghbridge/internal/poller"
)

// ErrMissingToken means no GitHub credential was configured.
var ErrMissingToken = errors.New("github token required (set " + EnvGitHubToken + ")")

// Settings is Config validated and converted to typed values.
type Settings struct {
	GitHubToken    string
	GitHubAPIURL   string
	GitHubPerPage  int
	GitHubMaxPages int
	GitHubTimeout  time.Duration

	PollInterval    time.Duration
	BootstrapWindow time.Duration

	PushTimeout    time.Duration
	PushRatePerSec int

	ServerAddr         string
	ServerToken        string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// StateDriver is the normalized driver name; the store itself is opened
	// from the raw state section.
	StateDriver string

	LogLevel       string
	LogConsole     bool
	LogFileEnabled bool
	LogFilePath    string

	SystemdNotify bool
}

// Resolve validates cfg and applies defaults.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		cfg = Default()
	}
	var (
		s    Settings
		errs []error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	s.GitHubToken = strings.TrimSpace(cfg.GitHub.Token)
	if s.GitHubToken == "" {
		errs = append(errs, ErrMissingToken)
	}
	s.GitHubAPIURL = strings.TrimSpace(cfg.GitHub.APIURL)
	s.GitHubPerPage = cfg.GitHub.PerPage
	if s.GitHubPerPage < 0 || s.GitHubPerPage > 50 {
		errs = append(errs, fmt.Errorf("github.per_page: must be between 1 and 50"))
	}
	s.GitHubMaxPages = cfg.GitHub.MaxPages
	if s.GitHubMaxPages < 0 {
		errs = append(errs, fmt.Errorf("github.max_pages: must be >= 0"))
	}
	s.GitHubTimeout = dur("github.timeout", cfg.GitHub.Timeout, 30*time.Second)

	iv, err := poller.ParseInterval(cfg.Poll.Interval)
	if err != nil {
		errs = append(errs, fmt.Errorf("poll.interval: %w", err))
	}
	s.PollInterval = iv
	s.BootstrapWindow = dur("poll.bootstrap_window", cfg.Poll.BootstrapWindow, 60*time.Second)

	s.PushTimeout = dur("push.timeout", cfg.Push.Timeout, 15*time.Second)
	s.PushRatePerSec = cfg.Push.RatePerSec
	if s.PushRatePerSec < 0 {
		errs = append(errs, fmt.Errorf("push.rate_per_sec: must be >= 0"))
	}

	s.ServerAddr = strings.TrimSpace(cfg.Server.Addr)
	if s.ServerAddr == "" {
		s.ServerAddr = ":8080"
	}
	s.ServerToken = strings.TrimSpace(cfg.Server.Token)
	s.ServerReadTimeout = dur("server.read_timeout", cfg.Server.ReadTimeout, 10*time.Second)
	// Long enough for POST /poll, which runs a whole cycle.
	s.ServerWriteTimeout = dur("server.write_timeout", cfg.Server.WriteTimeout, 2*time.Minute)
	s.ServerIdleTimeout = dur("server.idle_timeout", cfg.Server.IdleTimeout, time.Minute)

	s.StateDriver = strings.ToLower(strings.TrimSpace(cfg.State.Driver))
	if s.StateDriver == "" {
		s.StateDriver = "file"
	}
	dur("state.busy_timeout", cfg.State.BusyTimeout, 5*time.Second)
	switch s.StateDriver {
	case "file", "json", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.State.DSN) == "" {
			errs = append(errs, fmt.Errorf("state.dsn: required for driver %q", s.StateDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("state.driver: unknown driver %q", cfg.State.Driver))
	}

	s.LogLevel = strings.TrimSpace(cfg.Logging.Level)
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	s.LogConsole = cfg.Logging.Console
	s.LogFileEnabled = cfg.Logging.File.Enabled
	s.LogFilePath = strings.TrimSpace(cfg.Logging.File.Path)
	if s.LogFileEnabled && s.LogFilePath == "" {
		errs = append(errs, fmt.Errorf("logging.file.path: required when file logging is enabled"))
	}

	s.SystemdNotify = cfg.Systemd.Notify

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}
