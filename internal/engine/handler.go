package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra/auth"
	"go.uber.org/zap"
)

const defaultListLimit = 50

type RunReader interface {
	Get(ctx context.Context, id string) (*domain.TaskRun, error)
	List(ctx context.Context, limit int) ([]*domain.TaskRun, error)
	Len() int
}

type PendingLister interface {
	List(ctx context.Context, status string) ([]*domain.ApprovalRequest, error)
}

type Handler struct {
	dispatcher *Dispatcher
	runs       RunReader
	approvals  PendingLister
	logger     *zap.Logger
}

func NewHandler(d *Dispatcher, runs RunReader, approvals PendingLister, logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		runs:       runs,
		approvals:  approvals,
		logger:     logger.Named("data-plane"),
	}
}

// NewRouter собирает data plane. validator == nil: токены не проверяются (локальный запуск).
func NewRouter(h *Handler, validator auth.TokenValidator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	r.Get("/health", h.Health)

	r.Route("/v1/tasks", func(r chi.Router) {
		if validator != nil {
			r.Use(auth.NewMiddleware(validator, h.logger))
			r.Use(auth.RequireScope(domain.ScopeSubmit))
		}
		r.Get("/", h.ListRuns)
		r.Post("/execute", h.Execute)
		r.Post("/classify", h.Classify)
		r.Get("/{id}", h.GetRun)
	})
	return r
}

type taskBody struct {
	ID   string `json:"id"`
	Task string `json:"task"`
}

func decodeTask(r *http.Request) (taskBody, error) {
	var body taskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, errors.New("invalid request body")
	}
	if strings.TrimSpace(body.Task) == "" {
		return body, errors.New("task is required")
	}
	return body, nil
}

// Execute блокируется, пока задача не пройдет гейт и runner.
// POST /v1/tasks/execute {"task": "..."}
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	body, err := decodeTask(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.dispatcher.Submit(r.Context(), domain.TaskRequest{ID: body.ID, Description: body.Task})
	if run == nil {
		writeError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}
	if err != nil {
		// Итог известен, хотя и не сохранен: отдаем его клиенту
		h.logger.Warn("run finished but not stored", zap.String("task_id", run.ID), zap.Error(err))
	}
	writeJSON(w, statusCodeFor(run.Status), run)
}

// POST /v1/tasks/classify {"task": "..."}
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	body, err := decodeTask(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.dispatcher.Classify(r.Context(), body.Task))
}

// GET /v1/tasks?limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GET /v1/tasks/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type healthResponse struct {
	Status           string `json:"status"`
	Runs             int    `json:"runs"`
	PendingApprovals int    `json:"pending_approvals"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Runs: h.runs.Len()}
	pending, err := h.approvals.List(r.Context(), string(domain.StatusPending))
	if err != nil {
		h.logger.Warn("health: approval store unavailable", zap.Error(err))
		resp.Status = "degraded"
	}
	resp.PendingApprovals = len(pending)
	writeJSON(w, http.StatusOK, resp)
}

func statusCodeFor(s domain.TaskStatus) int {
	switch s {
	case domain.TaskCompleted:
		return http.StatusOK
	case domain.TaskDenied, domain.TaskTimedOut:
		return http.StatusForbidden
	case domain.TaskFailed:
		return http.StatusBadGateway
	default:
		return http.StatusAccepted
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
