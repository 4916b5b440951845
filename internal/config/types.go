package config

// Config is the on-disk configuration. Every section is optional; Resolve
// fills in defaults. Durations are Go duration strings ("30s", "2m").
type Config struct {
	GitHub  GitHubConfig  `json:"github"`
	Poll    PollConfig    `json:"poll"`
	Push    PushConfig    `json:"push"`
	Server  ServerConfig  `json:"server"`
	State   StateConfig   `json:"state"`
	Logging LoggingConfig `json:"logging"`
	Systemd SystemdConfig `json:"systemd"`
}

type GitHubConfig struct {
	// Token is normally supplied through GITHUB_TOKEN rather than the file.
	Token    string `json:"token,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	PerPage  int    `json:"per_page,omitempty"`
	MaxPages int    `json:"max_pages,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type PollConfig struct {
	// Interval accepts "30s", "interval:30s" or "@every 30s".
	Interval        string `json:"interval,omitempty"`
	BootstrapWindow string `json:"bootstrap_window,omitempty"`
}

type PushConfig struct {
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type ServerConfig struct {
	Addr         string `json:"addr,omitempty"`
	Token        string `json:"token,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StateConfig selects where the endpoint and cursor are persisted.
//
// driver: "file" (default), "sqlite" or "postgres".
type StateConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
