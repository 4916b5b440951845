// Package push delivers bridge events to the registered push endpoint
// (a UnifiedPush distributor or any HTTP receiver accepting JSON).
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ghbridge/internal/github"
)

// Event is the JSON body sent for one notification. It is never persisted.
type Event struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Reason string `json:"reason"`
	Repo   string `json:"repo"`
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
}

// FromNotification builds the event for one notification.
func FromNotification(n github.Notification) Event {
	return Event{
		Title:  fmt.Sprintf("[%s] %s", n.Repository.FullName, n.Subject.Title),
		Body:   fmt.Sprintf("%s: %s", n.Reason, n.Subject.Type),
		Reason: n.Reason,
		Repo:   n.Repository.FullName,
		ID:     n.ID,
		URL:    n.Subject.URL,
	}
}

// DeliveryError is a push endpoint answering with a non-2xx status.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push: endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("push: endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Config configures the forwarder.
type Config struct {
	Timeout time.Duration
	// RatePerSec caps deliveries per second; 0 disables the limit.
	RatePerSec int
}

// Forwarder posts one event per call. There is no retry and no queue:
// a failed delivery is reported to the caller and forgotten.
type Forwarder struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(cfg Config) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	f := &Forwarder{httpClient: &http.Client{Timeout: timeout}}
	if cfg.RatePerSec > 0 {
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return f
}

// Push delivers ev to endpoint with a single POST.
func (f *Forwarder) Push(ctx context.Context, endpoint string, ev Event) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("push: empty endpoint")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("push: rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("push: encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push: POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
