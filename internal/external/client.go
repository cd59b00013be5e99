// Package external is the boundary between rfcoverage and the remote
// propagation service. Every outbound request goes through BaseClient, which
// adds the run's trace header, trips a circuit breaker when the service keeps
// failing, optionally retries overload responses and maps failures to
// upstream_* AppErrors.
package external

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"rfcoverage/internal/types"
)

// Breaker defaults for the propagation service.
const (
	breakerTripAfter = 5
	breakerInterval  = time.Minute

	// BreakerOpenTimeout is how long an open breaker rejects calls before
	// letting one request through.
	BreakerOpenTimeout = 30 * time.Second
)

// maxFailureBody bounds the body kept from a failed response.
const maxFailureBody = 64 << 10

// RetryPolicy bounds the attempts BaseClient makes for one request.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy makes a single attempt per call. A point whose request
// fails is picked up again by the next run through the cache-miss path.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 0, MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
}

// NewHTTPClient builds the *http.Client used for the propagation service.
// With strictSSL false, certificate verification is skipped (self-hosted
// servers with private certificates).
func NewHTTPClient(timeout time.Duration, strictSSL bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !strictSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via CLOUDRF_STRICT_SSL=false
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// BaseClient sends requests to the propagation service. PropagationClient
// builds on it.
type BaseClient struct {
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	policy    RetryPolicy
	userAgent string
	sleep     func(time.Duration)
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces time.Sleep between retries (tests).
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) { c.sleep = fn }
}

// NewBaseClient creates a BaseClient with its own circuit breaker named
// breakerName. The breaker opens after more than five consecutive failed
// attempts and lets one request through after BreakerOpenTimeout.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	policy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > breakerTripAfter
		},
	})
	return NewBaseClientWithBreaker(httpClient, cb, policy, userAgent, opts...)
}

// NewBaseClientWithBreaker creates a BaseClient around an existing breaker.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	policy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	c := &BaseClient{
		http:      httpClient,
		breaker:   breaker,
		policy:    policy,
		userAgent: userAgent,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and returns the first response that is not an overload
// (429) or server error (5xx). Such responses are retried up to
// MaxRetries times, waiting per Retry-After or an exponential backoff.
// Every other status, 4xx included, is returned to the caller, who must
// close the body.
//
// When no usable response arrives Do returns an upstream_* *types.AppError
// and no response. An open breaker yields upstream_circuit_open without
// reaching the server.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if runID := types.GetRunID(req.Context()); runID != "" {
		req.Header.Set("X-B3-TraceId", runID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; ; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, lastErr = c.breaker.Execute(func() (*http.Response, error) {
			return c.send(req)
		})
		if lastErr == nil {
			return resp, nil
		}
		if breakerRejected(lastErr) || attempt >= c.policy.MaxRetries {
			break
		}

		wait := c.backoff(attempt, resp)
		discard(resp)
		c.sleep(wait)
	}

	status := 0
	var failed []byte
	if resp != nil {
		status = resp.StatusCode
		failed, _ = io.ReadAll(io.LimitReader(resp.Body, maxFailureBody))
		discard(resp)
	}
	appErr := mapFailure(status, lastErr)
	if len(failed) > 0 {
		appErr = appErr.WithDetails(map[string]any{"status_code": status, "body": string(failed)})
	}
	return nil, appErr
}

// FailureBody returns the response body kept on an upstream AppError from
// Do, if the failed response had one.
func FailureBody(err error) ([]byte, bool) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return nil, false
	}
	b, ok := appErr.Details["body"].(string)
	return []byte(b), ok && b != ""
}

// send performs one attempt. Overload and server errors count as failures
// for the breaker but keep their response for Retry-After.
func (c *BaseClient) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if retryable(resp.StatusCode) {
		return resp, fmt.Errorf("propagation service returned %d", resp.StatusCode)
	}
	return resp, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// bufferBody reads the request body once so every attempt can resend it.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
	}
	return b, nil
}

func discard(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// backoff returns the wait before retry attempt+1: the server's Retry-After
// when given, else MinWait·2^attempt with jitter. Both are capped at MaxWait.
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	if d, ok := retryAfter(resp); ok {
		return max(min(d, c.policy.MaxWait), c.policy.MinWait)
	}

	ceiling := c.policy.MinWait << attempt
	if ceiling <= 0 || ceiling > c.policy.MaxWait {
		ceiling = c.policy.MaxWait
	}
	if ceiling <= c.policy.MinWait {
		return c.policy.MinWait
	}
	return c.policy.MinWait + rand.N(ceiling-c.policy.MinWait)
}

// retryAfter parses a Retry-After header in seconds or HTTP-date form.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

// mapFailure converts the last failure into an upstream AppError. All of
// them are transient: the point is skipped for this run only.
func mapFailure(status int, err error) *types.AppError {
	switch {
	case breakerRejected(err):
		return types.NewAppError(types.ErrCodeUpstreamCircuitOpen,
			"circuit breaker is open; propagation service unavailable", err)
	case status == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			"propagation service rate limit exceeded", err)
	case status >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("propagation service returned %d", status), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "propagation request failed", err)
	}
}
