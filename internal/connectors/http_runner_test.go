package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
)

func TestHTTPRunner_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "trace-42", r.Header.Get("X-Trace-ID"))

		var body runRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "check homepage loads", body.Task)
		assert.Equal(t, "t-1", body.ID)

		w.Write([]byte(`{"status":"completed"}`))
	}))
	defer srv.Close()

	ctx := infra.WithTraceID(context.Background(), "trace-42")
	out, err := NewHTTPRunner(srv.URL, time.Second).Execute(ctx, domain.TaskRequest{ID: "t-1", Description: "check homepage loads"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"completed"}`, string(out))
}

func TestHTTPRunner_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPRunner(srv.URL, 5*time.Second).Execute(context.Background(), domain.TaskRequest{ID: "t"})
	var tErr *ThrottleError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, 3*time.Second, tErr.RetryAfter)
	assert.True(t, Retryable(err))
}

func TestHTTPRunner_RetryAfterIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "86400")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPRunner(srv.URL, 2*time.Second).Execute(context.Background(), domain.TaskRequest{ID: "t"})
	var tErr *ThrottleError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, 2*time.Second, tErr.RetryAfter)

	_, err = NewHTTPRunner(srv.URL, 0).Execute(context.Background(), domain.TaskRequest{ID: "t"})
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, maxRetryAfter, tErr.RetryAfter)
}

func TestHTTPRunner_OversizedResponseRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), maxResponseBody+10))
	}))
	defer srv.Close()

	_, err := NewHTTPRunner(srv.URL, 5*time.Second).Execute(context.Background(), domain.TaskRequest{ID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
	assert.False(t, Retryable(err))
}

func TestHTTPRunner_BadURLIsNotSent(t *testing.T) {
	_, err := NewHTTPRunner("http://bad host", time.Second).Execute(context.Background(), domain.TaskRequest{ID: "t"})
	var nsErr *NotSentError
	require.True(t, errors.As(err, &nsErr))
	assert.True(t, Retryable(err))
}

func TestHTTPRunner_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "browser crashed", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPRunner(srv.URL, time.Second).Execute(context.Background(), domain.TaskRequest{ID: "t"})
	var sErr *StatusError
	require.True(t, errors.As(err, &sErr))
	assert.False(t, Retryable(err))
	assert.Equal(t, http.StatusBadGateway, sErr.Code)
	assert.Equal(t, "browser crashed", sErr.Body)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("99999999999999"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestMockRunner_RecordsExecutions(t *testing.T) {
	m := &MockRunner{}
	_, err := m.Execute(context.Background(), domain.TaskRequest{ID: "a", Description: "open page"})
	require.NoError(t, err)
	_, err = m.Execute(context.Background(), domain.TaskRequest{ID: "b", Description: "call unstable.service"})
	assert.Error(t, err)

	executed := m.Executed()
	require.Len(t, executed, 2)
	assert.Equal(t, "a", executed[0].ID)
}
