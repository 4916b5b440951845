package config

import (
	"ghbridge/pkg/logx"
)

// Change describes what a reload altered.
type Change struct {
	// Live sections are applied without a restart.
	Live []string
	// Restart sections only take effect after a restart.
	Restart []string
	// Fields are safe to log; tokens are never included.
	Fields []logx.Field
}

func (c Change) Empty() bool { return len(c.Live) == 0 && len(c.Restart) == 0 }

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change

	if oldCfg.Logging != newCfg.Logging {
		c.Live = append(c.Live, "logging")
		c.Fields = append(c.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Poll.Interval != newCfg.Poll.Interval {
		c.Live = append(c.Live, "poll.interval")
		c.Fields = append(c.Fields, logx.String("poll.interval", newCfg.Poll.Interval))
	}
	if oldCfg.Poll.BootstrapWindow != newCfg.Poll.BootstrapWindow {
		c.Restart = append(c.Restart, "poll.bootstrap_window")
	}

	if oldCfg.GitHub != newCfg.GitHub {
		c.Restart = append(c.Restart, "github")
		c.Fields = append(c.Fields, logx.Bool("github.token_changed", oldCfg.GitHub.Token != newCfg.GitHub.Token))
	}
	if oldCfg.Push != newCfg.Push {
		c.Restart = append(c.Restart, "push")
	}
	if oldCfg.Server != newCfg.Server {
		c.Restart = append(c.Restart, "server")
		c.Fields = append(c.Fields, logx.String("server.addr", newCfg.Server.Addr))
	}
	if oldCfg.State != newCfg.State {
		c.Restart = append(c.Restart, "state")
	}
	if oldCfg.Systemd != newCfg.Systemd {
		c.Restart = append(c.Restart, "systemd")
	}
	return c
}
