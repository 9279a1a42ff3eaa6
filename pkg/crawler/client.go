// Copyright (c) 2025, the cloudseed authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cloudseed/cloudseed/pkg/defaults"
	"github.com/cloudseed/cloudseed/pkg/errors"
)

// Client fetches metadata URLs with bounded retries. The zero value is not
// usable; construct with NewClient.
type Client struct {
	httpClient *http.Client

	// timeout bounds a single request.
	timeout time.Duration

	// maxWait bounds all attempts for one Fetch or WaitForAny call.
	// Negative means a single attempt with no retries.
	maxWait time.Duration

	// retries bounds attempts per URL within the maxWait budget.
	retries int

	// limiter paces retry attempts so a dead endpoint is not hammered.
	limiter *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxWait sets the overall budget shared across attempts. A negative
// value means exactly one attempt.
func WithMaxWait(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxWait = d
	}
}

// WithRetries sets the per-URL retry bound.
func WithRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client with the package defaults applied.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout: defaults.CrawlTimeout,
		maxWait: defaults.CrawlMaxWait,
		retries: defaults.CrawlRetries,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   defaults.HTTPConnectTimeout,
					KeepAlive: defaults.HTTPKeepAlive,
				}).DialContext,
				ResponseHeaderTimeout: defaults.HTTPResponseHeaderTimeout,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = rate.NewLimiter(rate.Every(defaults.ProbeRetryInterval), 1)
	return c
}

// singleAttempt reports whether the budget sentinel requests exactly one
// attempt with no retries.
func (c *Client) singleAttempt() bool {
	return c.maxWait < 0
}

// budgetContext derives the context bounding all attempts of one call.
func (c *Client) budgetContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.singleAttempt() {
		// One attempt; the per-request timeout is the only bound.
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.maxWait)
}

// Fetch retrieves a URL, retrying transient failures until the retry bound
// or the overall budget is exhausted. A 404 response maps to
// ErrCodeNotFound without retries, since for metadata services absence is
// an answer, not a fault.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	budgetCtx, cancel := c.budgetContext(ctx)
	defer cancel()

	attempts := c.retries + 1
	if c.singleAttempt() {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.limiter.Wait(budgetCtx); err != nil {
				break
			}
		}

		body, retryable, err := c.fetchOnce(budgetCtx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		slog.Debug("metadata fetch attempt failed",
			"url", url,
			"attempt", attempt+1,
			"error", err)

		if budgetCtx.Err() != nil {
			break
		}
	}

	return nil, errors.WrapWithContext(
		errors.ErrCodeFetchFailed,
		"exhausted fetch budget",
		lastErr,
		map[string]any{
			"url":      url,
			"max_wait": c.maxWait.String(),
			"retries":  c.retries,
		},
	)
}

// fetchOnce performs a single bounded request. The second return reports
// whether the failure is worth retrying.
func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeInternal, "failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("failed to read response body: %w", err)
		}
		return body, false, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, false, errors.NewWithContext(
			errors.ErrCodeNotFound,
			"resource not present",
			map[string]any{"url": url},
		)

	default:
		return nil, true, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
}

// WaitForAny fans out over redundant endpoints serving the same content
// and returns the first successful response along with the URL that
// produced it. All attempts share the call's overall budget; outstanding
// attempts are abandoned as soon as one succeeds or the budget elapses.
func (c *Client) WaitForAny(ctx context.Context, urls []string) (string, []byte, error) {
	if len(urls) == 0 {
		return "", nil, errors.New(errors.ErrCodeInvalidConfig, "no metadata endpoints configured")
	}

	budgetCtx, cancel := c.budgetContext(ctx)
	defer cancel()

	type hit struct {
		url  string
		body []byte
	}
	found := make(chan hit, 1)

	g, gctx := errgroup.WithContext(budgetCtx)
	for _, url := range urls {
		g.Go(func() error {
			body, err := c.Fetch(gctx, url)
			if err != nil {
				slog.Debug("endpoint unavailable", "url", url, "error", err)
				//nolint:nilerr // A failed endpoint must not cancel its siblings.
				return nil
			}
			select {
			case found <- hit{url: url, body: body}:
				cancel()
			default:
			}
			return nil
		})
	}

	_ = g.Wait()

	select {
	case h := <-found:
		return h.url, h.body, nil
	default:
		return "", nil, errors.WrapWithContext(
			errors.ErrCodeUnavailable,
			"no metadata endpoint responded",
			budgetCtx.Err(),
			map[string]any{"endpoints": len(urls), "max_wait": c.maxWait.String()},
		)
	}
}
