// Package transport is the primary's outbound HTTP client to a replica's
// /replicate and /health endpoints. It never retries itself; retry policy
// belongs to the dispatcher and the health probe, which are the callers
// that know what "retry" means for their own state machines.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to one replica over HTTP.
type Client struct {
	addr       string
	httpClient *http.Client
}

// New returns a Client bound to a replica base URL, e.g. "http://r1:8001".
func New(addr string, timeout time.Duration) *Client {
	return &Client{
		addr: addr,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Addr returns the replica's base URL.
func (c *Client) Addr() string { return c.addr }

// ReplicateResult is the decoded response body from a replica's
// POST /replicate.
type ReplicateResult struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Replicate sends one log entry to the replica. Errors are always one of
// this package's sentinels wrapped in *Error.
func (c *Client) Replicate(ctx context.Context, seq int64, payload string) (ReplicateResult, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"msg": payload,
		"seq": seq,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/replicate", bytes.NewReader(body))
	if err != nil {
		return ReplicateResult{}, c.wrap(ErrUnreachable)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
			return ReplicateResult{}, c.wrap(ErrTimeout)
		}
		return ReplicateResult{}, c.wrap(ErrUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ReplicateResult{}, c.wrap(ErrServerError)
	}
	if resp.StatusCode >= 400 {
		return ReplicateResult{}, c.wrap(fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode))
	}

	var out ReplicateResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ReplicateResult{}, c.wrap(ErrMalformedResponse)
	}
	return out, nil
}

// HealthResult is the decoded response body from a replica's GET /health.
type HealthResult struct {
	Status  string `json:"status"`
	DelayMs int64  `json:"delay_ms"`
	Count   int    `json:"count"`
}

// Ping performs a liveness check against the replica.
func (c *Client) Ping(ctx context.Context) (HealthResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/health", nil)
	if err != nil {
		return HealthResult{}, c.wrap(ErrUnreachable)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
			return HealthResult{}, c.wrap(ErrTimeout)
		}
		return HealthResult{}, c.wrap(ErrUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return HealthResult{}, c.wrap(ErrServerError)
	}

	var out HealthResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HealthResult{}, c.wrap(ErrMalformedResponse)
	}
	return out, nil
}

func (c *Client) wrap(err error) error {
	return &Error{Addr: c.addr, Err: err}
}
