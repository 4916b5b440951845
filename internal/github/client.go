// Package github fetches the authenticated user's notifications from the
// GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	maxPerPage     = 50
)

// Config configures the notifications client.
type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	// PerPage is the page size requested from GitHub (1..50).
	PerPage int
	// MaxPages bounds how many Link rel="next" pages one fetch follows.
	MaxPages int
	Timeout  time.Duration
}

// Client is a thin HTTP client for GET /notifications.
// One call is one attempt; callers decide when to try again.
type Client struct {
	baseURL    string
	base       *url.URL
	token      string
	userAgent  string
	perPage    int
	maxPages   int
	httpClient *http.Client
}

// NewClient creates a client. Zero fields take defaults.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "ghbridge"
	}
	perPage := cfg.PerPage
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parsed, _ := url.Parse(base)
	return &Client{
		baseURL:    base,
		base:       parsed,
		token:      cfg.Token,
		userAgent:  ua,
		perPage:    perPage,
		maxPages:   maxPages,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Notifications returns notifications updated at or after since, in the order
// GitHub sends them. An empty since fetches GitHub's default window.
func (c *Client) Notifications(ctx context.Context, since string) ([]Notification, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.perPage))
	if since != "" {
		q.Set("since", since)
	}
	next := c.baseURL + "/notifications?" + q.Encode()

	var out []Notification
	for page := 0; page < c.maxPages && next != ""; page++ {
		batch, link, err := c.getPage(ctx, next)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		next = c.sameOrigin(next, nextLink(link))
	}
	return out, nil
}

func (c *Client) getPage(ctx context.Context, pageURL string) ([]Notification, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("github: GET /notifications: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("github: reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(body, &er) == nil {
			apiErr.Message = er.Message
		}
		return nil, "", apiErr
	}

	var batch []Notification
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, "", fmt.Errorf("github: decoding notifications: %w", err)
	}
	if batch == nil {
		return nil, "", errors.New("github: decoding notifications: null body")
	}
	return batch, resp.Header.Get("Link"), nil
}

// sameOrigin resolves target against the current page and returns it only
// when it points at the configured API origin; the bearer token is never
// sent elsewhere. An empty result stops pagination.
func (c *Client) sameOrigin(current, target string) string {
	if target == "" || c.base == nil {
		return ""
	}
	cur, err := url.Parse(current)
	if err != nil {
		return ""
	}
	u, err := cur.Parse(target)
	if err != nil {
		return ""
	}
	if !strings.EqualFold(u.Scheme, c.base.Scheme) || !strings.EqualFold(u.Host, c.base.Host) {
		return ""
	}
	return u.String()
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, p := range segs[1:] {
			p = strings.TrimSpace(p)
			if p == `rel="next"` || p == "rel=next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
