package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
)

const (
	defaultRetryAfter = time.Second
	maxRetryAfter     = 30 * time.Second
	maxErrorBody      = 512
	maxResponseBody   = 4 << 20
)

// HTTPRunner — клиент внешнего сервиса браузерной автоматизации.
// Сам runner (агент, браузер, сессии) живет за пределами шлюза.
type HTTPRunner struct {
	url      string
	client   *http.Client
	maxDelay time.Duration
}

// NewHTTPRunner: Retry-After от runner-а не превышает timeout (или maxRetryAfter, если timeout не задан).
func NewHTTPRunner(url string, timeout time.Duration) *HTTPRunner {
	maxDelay := maxRetryAfter
	if timeout > 0 && timeout < maxDelay {
		maxDelay = timeout
	}
	return &HTTPRunner{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		maxDelay: maxDelay,
	}
}

type runRequest struct {
	ID   string `json:"id"`
	Task string `json:"task"`
}

// Execute реализует engine.Executor.
func (r *HTTPRunner) Execute(ctx context.Context, task domain.TaskRequest) ([]byte, error) {
	body, err := json.Marshal(runRequest{ID: task.ID, Task: task.Description})
	if err != nil {
		return nil, &NotSentError{Cause: fmt.Errorf("failed to encode task: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, &NotSentError{Cause: fmt.Errorf("failed to build runner request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(infra.TraceHeader, infra.TraceIDFromContext(ctx))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read runner response: %w", err)
	}
	if len(data) > maxResponseBody {
		return nil, fmt.Errorf("runner response exceeds %d bytes", maxResponseBody)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottleError{
			RetryAfter: min(parseRetryAfter(resp.Header.Get("Retry-After")), r.maxDelay),
			Cause:      errors.New(resp.Status),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(data)), maxErrorBody)}
	}
	return data, nil
}

// parseRetryAfter понимает только форму в секундах; HTTP-date встречается у runner-ов редко.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	if secs > int(maxRetryAfter/time.Second) {
		return maxRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
