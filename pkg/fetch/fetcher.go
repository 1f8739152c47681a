/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fetch implements the low-level upstream transport: a single-endpoint GET with
// bearer auth, version pinning, a process-wide token bucket, bounded exponential backoff
// on 429/5xx, and blocking or lazy resolution of the pagination envelope.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/utils/log"
)

const (
	// DefaultAPIVersion pins the wire schema the client expects.
	DefaultAPIVersion = "v1"
	// VersionHeader carries the pinned wire version on every request.
	VersionHeader = "Pretalx-Version"

	// The upstream is slow and rate limited, so we are nice by default: two sustained
	// requests per second with a small burst, and a generous per-request deadline.
	DefaultRateLimit = rate.Limit(2)
	DefaultBurst     = 4
	DefaultTimeout   = 60 * time.Second

	defaultAttempts   = 4
	defaultRetryDelay = 500 * time.Millisecond
	defaultMaxJitter  = 250 * time.Millisecond
	maxRedirects      = 10
)

// Fetcher issues authenticated, throttled, version-pinned requests against a single
// upstream base URL. It is safe for concurrent use; the token bucket is shared by all
// requests issued through the same instance.
type Fetcher struct {
	client   *http.Client
	baseURL  *url.URL
	token    string
	version  string
	limiter  *rate.Limiter
	timeout  time.Duration
	attempts uint
}

type Option func(*Fetcher)

func WithVersion(version string) Option {
	return func(f *Fetcher) { f.version = version }
}

func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) { f.timeout = timeout }
}

func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(f *Fetcher) { f.limiter = rate.NewLimiter(limit, burst) }
}

func WithAttempts(attempts uint) Option {
	return func(f *Fetcher) { f.attempts = attempts }
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

func New(baseURL string, token string, opts ...Option) (*Fetcher, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url %q: %w", baseURL, err)
	}
	f := &Fetcher{
		baseURL:  parsed,
		token:    token,
		version:  DefaultAPIVersion,
		limiter:  rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		timeout:  DefaultTimeout,
		attempts: defaultAttempts,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	// trailing-slash redirects are followed transparently, preserving auth and the
	// version header on the follow
	f.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		req.Header = via[0].Header.Clone()
		return nil
	}
	return f, nil
}

// Version returns the pinned wire version.
func (f *Fetcher) Version() string { return f.version }

// GetRaw issues a throttled GET against path with the given query parameters and returns
// the raw response body. 429 and 5xx responses are retried with bounded exponential
// backoff and jitter; other 4xx responses fail immediately.
func (f *Fetcher) GetRaw(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := f.baseURL.JoinPath(path)
	if params != nil {
		u.RawQuery = params.Encode()
	}
	return f.do(ctx, http.MethodGet, u.String(), nil)
}

// GetURL issues a throttled GET against an absolute URL, typically a pagination cursor's
// next link.
func (f *Fetcher) GetURL(ctx context.Context, rawURL string) (json.RawMessage, error) {
	return f.do(ctx, http.MethodGet, rawURL, nil)
}

// PostJSON issues a throttled POST of the given document, used for the bulk-assignment
// upload. The document is sent verbatim.
func (f *Fetcher) PostJSON(ctx context.Context, path string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	u := f.baseURL.JoinPath(path)
	_, err = f.do(ctx, http.MethodPost, u.String(), body)
	return err
}

func (f *Fetcher) do(ctx context.Context, method string, rawURL string, body []byte) (json.RawMessage, error) {
	var result json.RawMessage
	err := retry.Do(
		func() error {
			// every attempt on the wire takes a token, retries included
			if err := f.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %v", apierrors.ErrCancelled, err)
			}
			var attemptErr error
			result, attemptErr = f.once(ctx, method, rawURL, body)
			return attemptErr
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(defaultRetryDelay),
		retry.MaxJitter(defaultMaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(apierrors.IsUnavailable),
		retry.OnRetry(func(n uint, err error) {
			retriesTotal.Inc()
			log.FromContext(ctx).Debugw("retrying upstream request", "url", rawURL, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) once(ctx context.Context, method string, rawURL string, body []byte) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("building request for %q: %w", rawURL, err)
	}
	req.Header.Set("Authorization", "Token "+f.token)
	req.Header.Set(VersionHeader, f.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	requestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("transport").Inc()
		return nil, classifyTransportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", apierrors.ErrUnavailable, err)
	}
	if apierrors.IsRetryable(resp.StatusCode) {
		return nil, fmt.Errorf("%w: status %d from %s", apierrors.ErrUnavailable, resp.StatusCode, rawURL)
	}
	if resp.StatusCode >= 400 {
		return nil, &apierrors.ClientError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	return payload, nil
}

// classifyTransportError maps socket-level failures to the error kinds callers dispatch
// on: the caller's cancellation wins over the per-request deadline.
func classifyTransportError(ctx context.Context, reqCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrCancelled, ctx.Err())
	}
	if reqCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", apierrors.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", apierrors.ErrUnavailable, err)
}
