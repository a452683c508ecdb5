package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-taskgate/internal/approval"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra/auth"
	"go.uber.org/zap"
)

type failingBroker struct{ approval.Broker }

func (failingBroker) Publish(context.Context, domain.Verdict) error {
	return errors.New("redis down")
}

func setupApprovals(t *testing.T, broker approval.Broker) (*ApprovalHandler, approval.Store) {
	t.Helper()
	store := approval.NewMemoryStore()
	now := time.Now()
	require.NoError(t, store.Create(context.Background(), &domain.ApprovalRequest{
		ID: "a1", TaskID: "t1", Description: "delete all user accounts",
		Level: domain.RiskHigh, Status: domain.StatusPending,
		CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))
	svc := approval.NewService(store, broker, zap.NewNop())
	return NewApprovalHandler(svc, zap.NewNop()), store
}

// withRoute имитирует разбор пути chi и авторизованного оператора
func withRoute(r *http.Request, id, userID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithClaims(ctx, userID, map[string]bool{domain.ScopeApprover: true})
	}
	return r.WithContext(ctx)
}

func TestApprovalHandler_Decide(t *testing.T) {
	h, store := setupApprovals(t, approval.NewMemoryBroker())

	req := withRoute(httptest.NewRequest(http.MethodPost, "/v1/approvals/a1/decide",
		strings.NewReader(`{"approved": true, "comment": "ok"}`)), "a1", "alice")
	rec := httptest.NewRecorder()
	h.Decide(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusApproved, got.Status)
	require.NotNil(t, got.ReviewerID)
	assert.Equal(t, "alice", *got.ReviewerID)

	stored, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)

	// Повторное решение
	rec = httptest.NewRecorder()
	h.Decide(rec, withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"approved": false}`)), "a1", "bob"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApprovalHandler_DecideErrors(t *testing.T) {
	h, _ := setupApprovals(t, approval.NewMemoryBroker())

	rec := httptest.NewRecorder()
	h.Decide(rec, withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), "a1", "alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Decide(rec, withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"approved": true}`)), "a1", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Decide(rec, withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"approved": true}`)), "nope", "alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprovalHandler_SignalLost(t *testing.T) {
	h, store := setupApprovals(t, failingBroker{})

	rec := httptest.NewRecorder()
	h.Decide(rec, withRoute(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"approved": true}`)), "a1", "alice"))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	stored, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
}

func TestApprovalHandler_Dismiss(t *testing.T) {
	h, _ := setupApprovals(t, approval.NewMemoryBroker())

	rec := httptest.NewRecorder()
	h.Dismiss(rec, withRoute(httptest.NewRequest(http.MethodPost, "/", nil), "a1", "alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusDenied, got.Status)
	require.NotNil(t, got.Comment)
	assert.Equal(t, "dismissed by operator", *got.Comment)
}

func TestApprovalHandler_ListAndCleanup(t *testing.T) {
	h, _ := setupApprovals(t, approval.NewMemoryBroker())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/approvals", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/approvals?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Cleanup(rec, httptest.NewRequest(http.MethodDelete, "/v1/approvals?max_age_hours=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, v := range []string{"99999999999", "876001", "9223372036854775807"} {
		rec = httptest.NewRecorder()
		h.Cleanup(rec, httptest.NewRequest(http.MethodDelete, "/v1/approvals?max_age_hours="+v, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, v)
	}

	rec = httptest.NewRecorder()
	h.Cleanup(rec, httptest.NewRequest(http.MethodDelete, "/v1/approvals?max_age_hours=0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed": 0}`, rec.Body.String())
}
