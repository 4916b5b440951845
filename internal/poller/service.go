// Package poller drives the bridge pipeline on a fixed period for the life of
// the process.
package poller

import (
	"context"
	"sync"
	"time"

	"ghbridge/internal/bridge"
	rtsup "ghbridge/internal/runtime/supervisor"
	"ghbridge/pkg/logx"
)

// Runner executes one poll cycle.
type Runner interface {
	RunCycle(ctx context.Context) bridge.Result
}

type Config struct {
	Interval time.Duration
	// AfterCycle runs after every cycle (systemd watchdog ping).
	AfterCycle func(bridge.Result)
}

// Status is the poller's view for /health.
type Status struct {
	Running     bool           `json:"running"`
	Interval    string         `json:"interval"`
	Cycles      uint64         `json:"cycles"`
	Failures    uint64         `json:"failures"`
	LastStartAt time.Time      `json:"last_start_at,omitempty"`
	LastTook    string         `json:"last_took,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	LastResult  *bridge.Result `json:"last_result,omitempty"`
}

type Service struct {
	runner     Runner
	afterCycle func(bridge.Result)
	log        logx.Logger

	mu       sync.Mutex
	interval time.Duration
	sup      *rtsup.Supervisor
	cycles   uint64
	failures uint64
	last     *bridge.Result

	wake chan struct{}
}

func New(r Runner, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	iv := cfg.Interval
	if iv <= 0 {
		iv = DefaultInterval
	}
	return &Service{
		runner:     r,
		afterCycle: cfg.AfterCycle,
		log:        log,
		interval:   iv,
		wake:       make(chan struct{}, 1),
	}
}

// Start launches the loop. The first cycle runs immediately. Start is a no-op
// when already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("poller.loop", s.loop, rtsup.WithBackoff(time.Second, time.Minute))
	s.log.Info("poller started", logx.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("poller stop", logx.Err(err))
		return
	}
	s.log.Info("poller stopped")
}

// SetInterval changes the period. A pending sleep is re-evaluated at once.
func (s *Service) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	changed := d != s.interval
	s.interval = d
	s.mu.Unlock()
	if !changed {
		return
	}
	s.log.Info("poll interval changed", logx.Duration("interval", d))
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:  s.sup != nil,
		Interval: s.interval.String(),
		Cycles:   s.cycles,
		Failures: s.failures,
	}
	if s.last != nil {
		r := *s.last
		st.LastResult = &r
		st.LastStartAt = r.StartedAt
		st.LastTook = r.Took.String()
		if r.Err != nil {
			st.LastError = r.Err.Error()
		}
	}
	return st
}

func (s *Service) record(res bridge.Result) {
	s.mu.Lock()
	s.cycles++
	if res.Err != nil {
		s.failures++
	}
	s.last = &res
	s.mu.Unlock()
}

func (s *Service) loop(ctx context.Context) error {
	for {
		start := time.Now()
		res := s.runner.RunCycle(ctx)
		s.record(res)
		if s.afterCycle != nil {
			s.afterCycle(res)
		}
		if err := s.sleep(ctx, start); err != nil {
			return err
		}
	}
}

// sleep waits out the rest of the period measured from start. A cycle that
// overran the period is followed immediately by the next one.
func (s *Service) sleep(ctx context.Context, start time.Time) error {
	for {
		wait := s.Interval() - time.Since(start)
		if wait <= 0 {
			return ctx.Err()
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-s.wake:
			t.Stop()
		case <-t.C:
			return nil
		}
	}
}
