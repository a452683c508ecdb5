package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-taskgate/internal/console/service"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"go.uber.org/zap"
)

type RuleHandler struct {
	service *service.RuleService
	logger  *zap.Logger
}

func NewRuleHandler(s *service.RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{service: s, logger: logger.Named("rule-handler")}
}

// List возвращает всю таблицу индикаторов в порядке применения
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.GetAll(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// GET /v1/rules/{id}
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Create добавляет правило в конец таблицы
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rule domain.RiskRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.Create(r.Context(), &rule); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// Update меняет pattern/severity и инициирует инвалидацию кэша
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var rule domain.RiskRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = chi.URLParam(r, "id")

	if err := h.service.Update(r.Context(), &rule); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) fail(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("rule operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
