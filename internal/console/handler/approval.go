package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-taskgate/internal/approval"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra/auth"
	"go.uber.org/zap"
)

// ApprovalService Описываем, что нам нужно от сервиса (approval.Service)
type ApprovalService interface {
	Get(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	List(ctx context.Context, status string) ([]*domain.ApprovalRequest, error)
	Decide(ctx context.Context, id string, approved bool, reviewerID, comment string) (*domain.ApprovalRequest, error)
	Dismiss(ctx context.Context, id, reviewerID string) (*domain.ApprovalRequest, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

type ApprovalHandler struct {
	service ApprovalService
	logger  *zap.Logger
}

func NewApprovalHandler(s ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: s, logger: logger.Named("approval-handler")}
}

// GET /v1/approvals/{id}
func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GET /v1/approvals?status=PENDING
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status") // Достаем из ?status=...
	if status == "" {
		status = string(domain.StatusPending) // Дефолт для удобства админки
	}
	if status == "all" {
		status = ""
	}

	list, err := h.service.List(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type DecideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// POST /v1/approvals/{id}/decide
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var body DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reviewerID := auth.UserIDFromContext(r.Context())
	if reviewerID == "" {
		writeError(w, http.StatusBadRequest, "reviewer_id is required")
		return
	}

	req, err := h.service.Decide(r.Context(), chi.URLParam(r, "id"), body.Approved, reviewerID, body.Comment)
	h.respondDecision(w, req, err)
}

// POST /v1/approvals/{id}/dismiss
func (h *ApprovalHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	reviewerID := auth.UserIDFromContext(r.Context())
	if reviewerID == "" {
		writeError(w, http.StatusBadRequest, "reviewer_id is required")
		return
	}
	req, err := h.service.Dismiss(r.Context(), chi.URLParam(r, "id"), reviewerID)
	h.respondDecision(w, req, err)
}

// maxCleanupHours — сто лет; больше не помещается в time.Duration с запасом.
const maxCleanupHours = 24 * 365 * 100

type cleanupResponse struct {
	Removed int `json:"removed"`
}

// DELETE /v1/approvals?max_age_hours=24
func (h *ApprovalHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxCleanupHours {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("max_age_hours must be an integer in [0, %d]", maxCleanupHours))
			return
		}
		hours = n
	}

	n, err := h.service.Cleanup(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Removed: n})
}

// respondDecision: решение сохранено, но сигнал потерян: 202, гейт закроется по таймауту.
func (h *ApprovalHandler) respondDecision(w http.ResponseWriter, req *domain.ApprovalRequest, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, req)
	case errors.Is(err, approval.ErrNotDelivered) && req != nil:
		writeJSON(w, http.StatusAccepted, req)
	default:
		h.fail(w, err)
	}
}

func (h *ApprovalHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrApprovalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyProcessed), errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("approval operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
