// Package bridge runs one poll cycle: fetch unread GitHub notifications since
// the stored cursor, forward each to the registered push endpoint and advance
// the cursor.
package bridge

import (
	"context"
	"sync"
	"time"

	"ghbridge/internal/eventbus"
	"ghbridge/internal/github"
	"ghbridge/internal/push"
	"ghbridge/internal/state"
	"ghbridge/pkg/logx"
	"ghbridge/pkg/wiretime"
)

// DefaultBootstrapWindow bounds what the first poll (no cursor yet) forwards.
const DefaultBootstrapWindow = 60 * time.Second

// Fetcher returns notifications updated at or after since ("" = no bound).
type Fetcher interface {
	Notifications(ctx context.Context, since string) ([]github.Notification, error)
}

// Pusher delivers one event to endpoint.
type Pusher interface {
	Push(ctx context.Context, endpoint string, ev push.Event) error
}

// Result summarizes one cycle.
type Result struct {
	// Skipped is set when no endpoint is registered; nothing was fetched.
	Skipped bool `json:"skipped"`
	// Err is the fetch error; state was not touched.
	Err error `json:"-"`

	FirstPoll     bool `json:"first_poll"`
	Fetched       int  `json:"fetched"`
	Unread        int  `json:"unread"`
	Forwarded     int  `json:"forwarded"`
	Failed        int  `json:"failed"`
	CutoffSkipped int  `json:"cutoff_skipped"`
	// InvalidTimestamps counts unread records whose updated_at did not parse.
	// They never move the cursor.
	InvalidTimestamps int           `json:"invalid_timestamps"`
	Cursor            string        `json:"cursor,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	Took              time.Duration `json:"took"`
}

// OK reports whether the cycle completed its fetch.
func (r Result) OK() bool { return !r.Skipped && r.Err == nil }

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithBootstrapWindow(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.window = d
		}
	}
}

func WithBus(b *eventbus.Bus) Option {
	return func(p *Pipeline) { p.bus = b }
}

func WithLogger(log logx.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// Pipeline is safe for concurrent use; cycles run one at a time.
type Pipeline struct {
	state   *state.State
	fetcher Fetcher
	pusher  Pusher

	now    func() time.Time
	window time.Duration
	bus    *eventbus.Bus
	log    logx.Logger

	cycleMu sync.Mutex
}

func New(st *state.State, f Fetcher, p Pusher, opts ...Option) *Pipeline {
	pl := &Pipeline{
		state:   st,
		fetcher: f,
		pusher:  p,
		now:     time.Now,
		window:  DefaultBootstrapWindow,
	}
	for _, o := range opts {
		o(pl)
	}
	if pl.log.IsZero() {
		pl.log = logx.Nop()
	}
	return pl
}

// RunCycle performs one poll cycle. A manual trigger waits for an in-flight
// scheduled cycle, so two cycles never race on the cursor.
func (p *Pipeline) RunCycle(ctx context.Context) Result {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	res := p.run(ctx)
	p.bus.Publish(eventbus.Event{Type: eventbus.TypePollCycle, Data: res})
	return res
}

func (p *Pipeline) run(ctx context.Context) (res Result) {
	res.StartedAt = p.now()
	defer func() { res.Took = p.now().Sub(res.StartedAt) }()

	endpoint, ok := p.state.Endpoint()
	if !ok {
		res.Skipped = true
		p.log.Debug("no endpoint registered; skipping poll")
		return res
	}

	since, hasCursor := p.state.Cursor()
	res.FirstPoll = !hasCursor
	var cutoff string
	if res.FirstPoll {
		cutoff = wiretime.Cutoff(res.StartedAt, p.window)
	}

	items, err := p.fetcher.Notifications(ctx, since)
	if err != nil {
		res.Err = err
		if github.IsAuthError(err) {
			p.log.Error("github rejected credential", logx.Err(err))
		} else {
			p.log.Warn("fetch notifications failed", logx.Err(err))
		}
		return res
	}
	res.Fetched = len(items)

	latest := ""
	for _, n := range items {
		if !n.Unread {
			continue
		}
		res.Unread++

		updated, ok := normalize(n.UpdatedAt)
		if !ok {
			// Never a cursor candidate.
			res.InvalidTimestamps++
			p.log.Warn("notification has invalid updated_at",
				logx.String("id", n.ID),
				logx.String("updated_at", n.UpdatedAt),
			)
			if res.FirstPoll {
				// Age unknown: treat as outside the bootstrap window.
				res.CutoffSkipped++
				continue
			}
		} else {
			if wiretime.After(updated, latest) {
				latest = updated
			}
			if res.FirstPoll && wiretime.Before(updated, cutoff) {
				res.CutoffSkipped++
				continue
			}
		}

		if err := p.pusher.Push(ctx, endpoint, push.FromNotification(n)); err != nil {
			res.Failed++
			p.log.Warn("push failed",
				logx.String("id", n.ID),
				logx.String("repo", n.Repository.FullName),
				logx.Err(err),
			)
			continue
		}
		res.Forwarded++
	}

	if latest != "" {
		current, _ := normalize(since)
		if !hasCursor || wiretime.After(latest, current) {
			p.state.SetCursor(ctx, latest)
			res.Cursor = latest
		}
	}

	fields := []logx.Field{
		logx.Int("fetched", res.Fetched),
		logx.Int("unread", res.Unread),
		logx.Int("forwarded", res.Forwarded),
		logx.Int("failed", res.Failed),
	}
	if res.FirstPoll {
		fields = append(fields, logx.Int("cutoff_skipped", res.CutoffSkipped), logx.String("cutoff", cutoff))
	}
	if res.Cursor != "" {
		fields = append(fields, logx.String("cursor", res.Cursor))
	}
	if res.InvalidTimestamps > 0 {
		fields = append(fields, logx.Int("invalid_timestamps", res.InvalidTimestamps))
	}
	p.log.Info("poll cycle done", fields...)
	return res
}

// normalize rewrites a timestamp to the UTC wire form so string order stays
// chronological. ok is false when s is not a timestamp.
func normalize(s string) (string, bool) {
	t, err := wiretime.Parse(s)
	if err != nil {
		return "", false
	}
	return wiretime.Format(t), true
}
