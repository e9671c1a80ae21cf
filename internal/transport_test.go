package internal

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport returns canned responses in order.
type scriptedTransport struct {
	responses []*http.Response
	errs      []error
	calls     int
}

func (t *scriptedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	i := t.calls
	t.calls++
	if t.errs[i] != nil {
		return nil, t.errs[i]
	}
	return t.responses[i], nil
}

func resp(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}
}

func TestRetryTransportRecovers(t *testing.T) {
	t.Parallel()

	inner := &scriptedTransport{
		responses: []*http.Response{nil, nil, resp(http.StatusOK)},
		errs:      []error{statusErr(503), statusErr(503), nil},
	}
	rt := retryTransport{RoundTripper: inner, attempts: 3, base: time.Millisecond}

	req, err := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, err)

	got, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, got.StatusCode)
}

func TestRetryTransportExhaustsBudget(t *testing.T) {
	t.Parallel()

	inner := &scriptedTransport{
		responses: make([]*http.Response, 3),
		errs:      []error{statusErr(500), statusErr(500), statusErr(500)},
	}
	rt := retryTransport{RoundTripper: inner, attempts: 3, base: time.Millisecond}

	req, err := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)

	var s statusErr
	require.ErrorAs(t, err, &s)
	assert.Equal(t, 500, s.Status())
}

func TestRetryTransportSkipsClientErrors(t *testing.T) {
	t.Parallel()

	inner := &scriptedTransport{
		responses: make([]*http.Response, 1),
		errs:      []error{statusErr(404)},
	}
	rt := retryTransport{RoundTripper: inner, attempts: 3, base: time.Millisecond}

	req, err := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryTransportHonorsCancellation(t *testing.T) {
	t.Parallel()

	inner := &scriptedTransport{
		responses: make([]*http.Response, 3),
		errs:      []error{statusErr(500), statusErr(500), statusErr(500)},
	}
	rt := retryTransport{RoundTripper: inner, attempts: 3, base: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://example.com", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = rt.RoundTrip(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, inner.calls) // No second attempt after cancellation.
}

func TestClassifyErr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorKindTimeout, classifyErr(context.DeadlineExceeded))
	assert.Equal(t, ErrorKindTimeout, classifyErr(context.Canceled))
	assert.Equal(t, ErrorKindMalformed, classifyErr(errors.Join(errMalformed, errors.New("bad json"))))
	assert.Equal(t, ErrorKindUnavailable, classifyErr(statusErr(503)))
	assert.Equal(t, ErrorKindUnavailable, classifyErr(errors.New("connection refused")))
}
