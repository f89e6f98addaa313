// Package backend is a typed client for the case/task management API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/circuitbreaker"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/config"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/metrics"
)

const maxErrorBody = 64 << 10

type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

// New builds a client with pooled connections and the configured call timeout.
func New(cfg config.BackendCfg) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		TLSHandshakeTimeout:   timeout / 3,
		ExpectContinueTimeout: 1 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}
	hc := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		// Redirects from the API are errors, not something to follow with a bearer token.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	return NewWithHTTPClient(cfg.BaseURL, hc, circuitbreaker.New("api", circuitbreaker.FromConfig(cfg.Breaker)))
}

func NewWithHTTPClient(baseURL string, hc *http.Client, b *circuitbreaker.Breaker) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, breaker: b}
}

// BreakerState reports the circuit state for health checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

type call struct {
	endpoint string // metrics label
	method   string
	path     string
	token    string
	body     any
	out      any
}

// errorBody covers the error shapes the API produces.
type errorBody struct {
	Message          string            `json:"message"`
	Error            string            `json:"error"`
	ValidationErrors map[string]string `json:"validationErrors"`
}

func (c *Client) do(ctx context.Context, cl call) error {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.BackendDuration.WithLabelValues(cl.endpoint).Observe(time.Since(start).Seconds())
		metrics.BackendRequests.WithLabelValues(cl.endpoint, outcome).Inc()
	}()

	release, err := c.breaker.Allow()
	if err != nil {
		outcome = "breaker_open"
		return &NetworkError{Op: cl.endpoint, Err: err}
	}
	if release {
		defer c.breaker.Release()
	}

	var reqBody io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}
	if id := httputil.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A caller that went away says nothing about backend health.
		if !errors.Is(err, context.Canceled) {
			c.breaker.RecordFailure()
		}
		outcome = "network"
		return &NetworkError{Op: cl.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}

	if resp.StatusCode >= 300 {
		outcome = strconv.Itoa(resp.StatusCode)
		return remoteError(resp)
	}
	outcome = "ok"

	if cl.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: cl.endpoint, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, cl.out); err != nil {
		outcome = "decode"
		return fmt.Errorf("%s: decode response: %w", cl.endpoint, err)
	}
	return nil
}

func remoteError(resp *http.Response) *RemoteError {
	re := &RemoteError{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusTooManyRequests {
		re.RetryAfter = resp.Header.Get("Retry-After")
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		re.Message = eb.Message
		if re.Message == "" {
			re.Message = eb.Error
		}
		re.ValidationErrors = eb.ValidationErrors
	}
	if re.Message == "" {
		re.Message = http.StatusText(resp.StatusCode)
	}
	return re
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, call{endpoint: "health", method: http.MethodGet, path: "/health"})
}
