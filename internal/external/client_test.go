package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfcoverage/internal/types"
)

func noopSleep(time.Duration) {}

var fastRetries = RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

func newTestClient(policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test", policy, "rfcoverage-test/1.0", opts...)
}

// statusSequence answers each call with the next status, repeating the last.
func statusSequence(calls *atomic.Int32, statuses ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
		_, _ = io.WriteString(w, `{"ok":true}`)
	}
}

func get(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func requireAppError(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, types.ClassTransient, appErr.Class())
}

func TestDo_Headers(t *testing.T) {
	headers := make(chan http.Header, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	defer srv.Close()

	c := newTestClient(DefaultRetryPolicy())

	ctx := types.WithRunID(context.Background(), "run-42")
	resp, err := c.Do(get(t, ctx, srv.URL))
	require.NoError(t, err)
	resp.Body.Close()
	h := <-headers
	assert.Equal(t, "run-42", h.Get("X-B3-TraceId"))
	assert.Equal(t, "rfcoverage-test/1.0", h.Get("User-Agent"))

	resp, err = c.Do(get(t, context.Background(), srv.URL))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, (<-headers).Get("X-B3-TraceId"))
}

func TestDo_StatusHandling(t *testing.T) {
	cases := []struct {
		name      string
		policy    RetryPolicy
		statuses  []int
		wantCalls int32
		wantCode  types.ErrorCode
		wantOK    int
	}{
		{name: "success", policy: fastRetries, statuses: []int{200}, wantCalls: 1, wantOK: 200},
		{name: "client error returned as is", policy: fastRetries, statuses: []int{404}, wantCalls: 1, wantOK: 404},
		{name: "500 then success", policy: fastRetries, statuses: []int{500, 503, 200}, wantCalls: 3, wantOK: 200},
		{name: "429 then success", policy: fastRetries, statuses: []int{429, 200}, wantCalls: 2, wantOK: 200},
		{name: "500 exhausted", policy: fastRetries, statuses: []int{502}, wantCalls: 3, wantCode: types.ErrCodeUpstreamUnavailable},
		{name: "429 exhausted", policy: fastRetries, statuses: []int{429}, wantCalls: 3, wantCode: types.ErrCodeUpstreamRateLimited},
		{name: "default policy is one attempt", policy: DefaultRetryPolicy(), statuses: []int{500, 200}, wantCalls: 1, wantCode: types.ErrCodeUpstreamUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(statusSequence(&calls, tc.statuses...))
			defer srv.Close()

			resp, err := newTestClient(tc.policy).Do(get(t, context.Background(), srv.URL))
			assert.Equal(t, tc.wantCalls, calls.Load())
			if tc.wantCode != "" {
				assert.Nil(t, resp)
				requireAppError(t, err, tc.wantCode)
				return
			}
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.wantOK, resp.StatusCode)
		})
	}
}

func TestDo_ReplaysBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
		calls  atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("civic=7&net=LTE"))
	require.NoError(t, err)
	resp, err := newTestClient(fastRetries).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"civic=7&net=LTE", "civic=7&net=LTE"}, bodies)
}

func TestDo_RetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	var waits []time.Duration
	sleep := func(d time.Duration) { waits = append(waits, d) }

	policy := RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 10 * time.Second}
	resp, err := newTestClient(policy, WithSleepFunc(sleep)).Do(get(t, context.Background(), srv.URL))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []time.Duration{3 * time.Second}, waits)

	calls.Store(0)
	waits = nil
	policy.MaxWait = time.Second
	resp, err = newTestClient(policy, WithSleepFunc(sleep)).Do(get(t, context.Background(), srv.URL))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []time.Duration{time.Second}, waits, "Retry-After is capped by MaxWait")
}

func TestBackoff_Bounds(t *testing.T) {
	c := newTestClient(RetryPolicy{MaxRetries: 5, MinWait: 10 * time.Millisecond, MaxWait: 50 * time.Millisecond})
	for attempt := 0; attempt < 6; attempt++ {
		d := c.backoff(attempt, nil)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}

func TestDo_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(DefaultRetryPolicy()).Do(get(t, context.Background(), url))
	requireAppError(t, err, types.ErrCodeUpstreamUnavailable)
}

func TestDo_OpenBreakerSkipsServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(statusSequence(&calls, http.StatusInternalServerError))
	defer srv.Close()

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "test-open",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	c := NewBaseClientWithBreaker(&http.Client{}, cb, DefaultRetryPolicy(), "", WithSleepFunc(noopSleep))

	for i := 0; i < 2; i++ {
		_, err := c.Do(get(t, context.Background(), srv.URL))
		requireAppError(t, err, types.ErrCodeUpstreamUnavailable)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	resp, err := c.Do(get(t, context.Background(), srv.URL))
	assert.Nil(t, resp)
	requireAppError(t, err, types.ErrCodeUpstreamCircuitOpen)
	assert.EqualValues(t, 2, calls.Load(), "open breaker must not reach the server")
}

func TestNewHTTPClient(t *testing.T) {
	strict := NewHTTPClient(30*time.Second, true)
	assert.Equal(t, 30*time.Second, strict.Timeout)
	tr, ok := strict.Transport.(*http.Transport)
	require.True(t, ok)
	assert.False(t, tr.TLSClientConfig != nil && tr.TLSClientConfig.InsecureSkipVerify)

	lax := NewHTTPClient(time.Second, false)
	assert.True(t, lax.Transport.(*http.Transport).TLSClientConfig.InsecureSkipVerify)
}
