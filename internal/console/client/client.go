// Package client: HTTP-клиент консоли для gatectl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

// APIError — ответ консоли с не-2xx кодом.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("console: %d %s", e.Code, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Login получает токен по логину и паролю.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	var out domain.TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/token", domain.LoginRequest{Username: username, Password: password}, &out)
	return &out, err
}

// Pending возвращает очередь PENDING заявок.
func (c *Client) Pending(ctx context.Context) ([]*domain.ApprovalRequest, error) {
	var out []*domain.ApprovalRequest
	err := c.do(ctx, http.MethodGet, "/v1/approvals?status="+url.QueryEscape(string(domain.StatusPending)), nil, &out)
	return out, err
}

// Decide отправляет решение оператора. Код 202 означает: решение сохранено,
// но ждущий шлюз его не получил.
func (c *Client) Decide(ctx context.Context, id string, approved bool, comment string) (*domain.ApprovalRequest, error) {
	var out domain.ApprovalRequest
	body := map[string]interface{}{"approved": approved, "comment": comment}
	err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(id)+"/decide", body, &out)
	return &out, err
}

func (c *Client) Dismiss(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	var out domain.ApprovalRequest
	err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(id)+"/dismiss", nil, &out)
	return &out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("console: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("console: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("console: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("console: decode response: %w", err)
	}
	return nil
}
