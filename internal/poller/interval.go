package poller

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 30 * time.Second

var reMMSS = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseInterval parses a poll interval.
//
// Accepted forms:
//   - Go duration: "30s", "2m"
//   - MM:SS: "00:45", "01:30"
//   - prefixed: "interval:30s", "every:1m"
//   - cron descriptor: "@every 30s"
//
// An empty value yields DefaultInterval. Calendar cron expressions are
// rejected: the poller runs on a fixed period measured from cycle start.
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DefaultInterval, nil
	}

	low := strings.ToLower(s)
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			return parsePeriod(strings.TrimSpace(s[len(p):]))
		}
	}

	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return 0, fmt.Errorf("invalid poll interval %q: %w", raw, err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("invalid poll interval %q: only @every schedules are supported", raw)
		}
		return every.Delay, nil
	}

	return parsePeriod(s)
}

func parsePeriod(v string) (time.Duration, error) {
	if v == "" {
		return 0, fmt.Errorf("poll interval required")
	}
	var d time.Duration
	if m := reMMSS.FindStringSubmatch(v); m != nil {
		var mins, secs int
		_, _ = fmt.Sscanf(m[1], "%d", &mins)
		_, _ = fmt.Sscanf(m[2], "%d", &secs)
		if secs > 59 {
			return 0, fmt.Errorf("invalid seconds in %q", v)
		}
		d = time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid poll interval %q (use a duration like '30s', MM:SS, or '@every 30s')", v)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll interval must be > 0")
	}
	return d, nil
}
