package internal

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// NewUpstream creates an http.Client with middleware appropriate for use with
// a provider: requests are pinned to the host, rate limited, retried with
// backoff, and 4XX/5XX responses surface as statusErr.
func NewUpstream(host string, limiter *rate.Limiter, header http.Header) (*http.Client, error) {
	if host == "" {
		return nil, fmt.Errorf("missing upstream host")
	}
	if _, err := url.Parse("https://" + host); err != nil {
		return nil, fmt.Errorf("invalid upstream host: %w", err)
	}

	var rt http.RoundTripper = errorProxyTransport{http.DefaultTransport}
	rt = retryTransport{RoundTripper: rt, attempts: 3, base: 250 * time.Millisecond}
	rt = ScopedTransport{Host: host, RoundTripper: rt}
	if len(header) > 0 {
		rt = headerTransport{header: header, RoundTripper: rt}
	}
	return &http.Client{
		Transport: throttledTransport{Limiter: limiter, RoundTripper: rt},
	}, nil
}

// throttledTransport rate limits requests.
type throttledTransport struct {
	*rate.Limiter
	http.RoundTripper
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	return t.RoundTripper.RoundTrip(r)
}

// ScopedTransport restricts requests to a particular host.
type ScopedTransport struct {
	Host string
	http.RoundTripper
}

// RoundTrip forces the request to stick to the given host, so redirects can't
// send us elsewhere. Helpful to ensure credentials don't leak to other
// domains.
func (t ScopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = "https"
	r.URL.Host = t.Host
	return t.RoundTripper.RoundTrip(r)
}

// headerTransport adds headers to all requests. Best used with a
// ScopedTransport.
type headerTransport struct {
	header http.Header
	http.RoundTripper
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	for k, vs := range t.header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	return t.RoundTripper.RoundTrip(r)
}

// errorProxyTransport returns a non-nil statusErr for all response codes 400
// and above so failures can be classified without inspecting bodies.
type errorProxyTransport struct {
	http.RoundTripper
}

func (t errorProxyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, statusErr(resp.StatusCode)
	}
	return resp, nil
}

// retryTransport retries transient failures with exponential backoff and
// jitter. Clients own their retry budget; the orchestrator never retries.
type retryTransport struct {
	http.RoundTripper
	attempts int
	base     time.Duration
}

func (t retryTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < t.attempts; attempt++ {
		if attempt > 0 {
			backoff := t.base << (attempt - 1)
			backoff += time.Duration(rand.Int64N(int64(backoff))) // Full jitter up to 2x.
			select {
			case <-time.After(backoff):
			case <-r.Context().Done():
				return nil, r.Context().Err()
			}
		}

		resp, err = t.RoundTripper.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, err
}

// retryable reports whether the failure is worth another attempt: 429s,
// server-side errors, and transport-level failures. Other 4XXs are final.
func retryable(err error) bool {
	var s statusErr
	if errors.As(err, &s) {
		return s.Status() == http.StatusTooManyRequests || s.Status() >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
