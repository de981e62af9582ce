// Package divera implements a client for the Divera 24/7 HTTP API.
package divera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the hosted Divera 24/7 instance.
	DefaultBaseURL = "https://app.divera247.com"

	pullPath   = "/api/v2/pull/all"
	statusPath = "/api/v2/statusgeber/set-status"

	paramAccessKey    = "accesskey"
	paramUCR          = "ucr"
	paramStatusplan   = "ts_statusplan"
	paramLocalMonitor = "ts_localmonitor"
	paramMonitor      = "ts_monitor"
)

// Client talks to the Divera 24/7 API on behalf of a single access key and,
// optionally, a single user-cluster relation (UCR).
type Client struct {
	base      string
	accessKey string
	ucrID     int // 0 = let the API pick the active UCR
	http      *http.Client
	limiter   *rate.Limiter
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithUCR pins the client to a specific user-cluster relation.
func WithUCR(ucrID int) Option {
	return func(c *Client) { c.ucrID = ucrID }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRateLimit caps outgoing requests. The default allows short bursts
// while keeping sustained load well below what app.divera247.com tolerates.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a Client for the given base URL and access key.
func New(base, accessKey string, opts ...Option) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{
		base:      strings.TrimRight(base, "/"),
		accessKey: accessKey,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 10),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// PullAll fetches the complete account state for the client's UCR.
func (c *Client) PullAll(ctx context.Context) (*Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Sentinel: ErrConnection, Operation: "pull", URL: c.base + pullPath, Err: err}
	}

	ts := strconv.FormatInt(c.now().Unix(), 10)
	params := url.Values{}
	params.Set(paramAccessKey, c.accessKey)
	params.Set(paramStatusplan, ts)
	params.Set(paramLocalMonitor, ts)
	params.Set(paramMonitor, ts)
	if c.ucrID != 0 {
		params.Set(paramUCR, strconv.Itoa(c.ucrID))
	}

	u := c.base + pullPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &APIError{Sentinel: ErrConnection, Operation: "pull", URL: c.base + pullPath, Err: sanitizeErr(err)}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Sentinel: ErrConnection, Operation: "pull", URL: c.base + pullPath, Err: sanitizeErr(err)}
	}
	defer res.Body.Close()

	if err := checkStatus(res, "pull", c.base+pullPath); err != nil {
		return nil, err
	}

	var p pullResponse
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "pull", URL: c.base + pullPath, Err: err}
	}
	return &p.Data, nil
}

// SetStatusByID writes the user's availability status upstream.
func (c *Client) SetStatusByID(ctx context.Context, statusID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Sentinel: ErrConnection, Operation: "set-status", URL: c.base + statusPath, Err: err}
	}

	params := url.Values{}
	params.Set(paramAccessKey, c.accessKey)
	if c.ucrID != 0 {
		params.Set(paramUCR, strconv.Itoa(c.ucrID))
	}

	body, err := json.Marshal(map[string]any{
		"Status": map[string]any{"id": statusID},
	})
	if err != nil {
		return fmt.Errorf("divera: encode status payload: %w", err)
	}

	u := c.base + statusPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return &APIError{Sentinel: ErrConnection, Operation: "set-status", URL: c.base + statusPath, Err: sanitizeErr(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return &APIError{Sentinel: ErrConnection, Operation: "set-status", URL: c.base + statusPath, Err: sanitizeErr(err)}
	}
	defer res.Body.Close()

	return checkStatus(res, "set-status", c.base+statusPath)
}

// SetStatusByName resolves a status name against the snapshot's status plan
// and writes the resolved id upstream.
func (c *Client) SetStatusByName(ctx context.Context, snap *Snapshot, name string) error {
	id, err := snap.StatusIDByName(name)
	if err != nil {
		return err
	}
	return c.SetStatusByID(ctx, id)
}

// sanitizeErr strips query strings from wrapped url.Errors. Transport
// failures echo the full request URL, access key included.
func sanitizeErr(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return ue.Err
	}
	u.RawQuery = ""
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}

func checkStatus(res *http.Response, op, maskedURL string) error {
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return &APIError{Sentinel: ErrAuth, Operation: op, Status: res.StatusCode, URL: maskedURL}
	default:
		return &APIError{Sentinel: ErrUpstream, Operation: op, Status: res.StatusCode, URL: maskedURL}
	}
}
