package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ghbridge/pkg/logx"
)

const maxBodyBytes = 64 << 10

type registerRequest struct {
	Endpoint string `json:"endpoint"`
}

type healthResponse struct {
	Status         string  `json:"status"`
	Registered     bool    `json:"registered"`
	Endpoint       *string `json:"endpoint"`
	LastPollCursor *string `json:"last_poll_cursor"`
	Poller         any     `json:"poller,omitempty"`
	Tasks          any     `json:"tasks,omitempty"`
}

func (s *Service) routes() http.Handler {
	return s.withRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			s.only(http.MethodGet, w, r, s.handleHealth)
		case "/register":
			s.withAuth(func(w http.ResponseWriter, r *http.Request) {
				s.only(http.MethodPost, w, r, s.handleRegister)
			})(w, r)
		case "/poll":
			s.withAuth(func(w http.ResponseWriter, r *http.Request) {
				s.only(http.MethodPost, w, r, s.handlePoll)
			})(w, r)
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
	}))
}

func (s *Service) only(method string, w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	h(w, r)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	resp := healthResponse{
		Status:         "ok",
		Registered:     snap.Endpoint != nil,
		Endpoint:       snap.Endpoint,
		LastPollCursor: snap.LastPollCursor,
	}
	if s.pollerStatus != nil {
		resp.Poller = s.pollerStatus()
	}
	if s.taskStatus != nil {
		resp.Tasks = s.taskStatus()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	endpoint, err := decodeRegister(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var in *InputError
		if errors.As(err, &in) {
			s.reqLog(r).Info("registration rejected", logx.String("reason", in.Reason))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": in.Reason})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	s.state.SetEndpoint(context.WithoutCancel(r.Context()), endpoint)
	s.reqLog(r).Info("endpoint registered", logx.String("endpoint", endpoint))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "endpoint": endpoint})
}

func (s *Service) handlePoll(w http.ResponseWriter, r *http.Request) {
	// The cycle outlives a client that hangs up mid-request.
	res := s.cycler.RunCycle(context.WithoutCancel(r.Context()))
	s.reqLog(r).Info("manual poll",
		logx.Bool("skipped", res.Skipped),
		logx.Int("forwarded", res.Forwarded),
		logx.Err(res.Err),
	)
	writeJSON(w, http.StatusOK, map[string]any{"triggered": true, "result": res})
}

func decodeRegister(body io.Reader) (string, error) {
	var req registerRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", &InputError{Reason: fmt.Sprintf("Invalid JSON: %v", err)}
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return "", &InputError{Reason: "endpoint is required"}
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &InputError{Reason: "endpoint must be an absolute http(s) URL"}
	}
	return endpoint, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
