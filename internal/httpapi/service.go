// Package httpapi serves the registration and control surface: health,
// endpoint registration and manual poll triggering.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ghbridge/internal/bridge"
	rtsup "ghbridge/internal/runtime/supervisor"
	"ghbridge/internal/state"
	"ghbridge/pkg/logx"
)

const DefaultAddr = ":8080"

type Config struct {
	Addr string
	// Token, when set, is required as a Bearer token on every route but /health.
	Token string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Cycler runs one poll cycle on demand.
type Cycler interface {
	RunCycle(ctx context.Context) bridge.Result
}

type Option func(*Service)

// WithPollerStatus adds the value returned by fn to /health.
func WithPollerStatus(fn func() any) Option {
	return func(s *Service) { s.pollerStatus = fn }
}

// WithTaskStatus adds the supervised task list returned by fn to /health.
func WithTaskStatus(fn func() any) Option {
	return func(s *Service) { s.taskStatus = fn }
}

type Service struct {
	cfg          Config
	state        *state.State
	cycler       Cycler
	pollerStatus func() any
	taskStatus   func() any
	log          logx.Logger

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, st *state.State, c Cycler, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Service{cfg: cfg, state: st, cycler: c, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Service) Handler() http.Handler { return s.routes() }

// Start binds the listener and serves in the background. A bind failure is
// returned to the caller; the process cannot work without the surface.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.ln, s.srv = ln, srv
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go("http.serve", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server exited", logx.Err(err))
			return err
		}
		return nil
	})

	s.log.Info("listening", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down gracefully within ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.ln, s.sup = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown", logx.Err(err))
		_ = srv.Close()
	}
	_ = sup.Stop(ctx)
	s.log.Info("http stopped")
}

type ctxKey struct{}

func (s *Service) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Service) reqLog(r *http.Request) logx.Logger {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return s.log.With(logx.String("request_id", id), logx.String("path", r.URL.Path))
}

func (s *Service) withAuth(h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const p = "Bearer "
		ah := r.Header.Get("Authorization")
		got := strings.TrimSpace(strings.TrimPrefix(ah, p))
		if strings.HasPrefix(ah, p) && subtle.ConstantTimeCompare([]byte(got), []byte(tok)) == 1 {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}
