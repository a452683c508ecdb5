package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/spaceai-taskgate/internal/console/handler"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler     // /auth/token
	approvalHandler *handler.ApprovalHandler // /v1/approvals (HITL)
	ruleHandler     *handler.RuleHandler     // /v1/rules (nil: таблица правил не в БД)
	auditHandler    *handler.AuditHandler    // /v1/audit (nil: журнал не в БД)
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	approvalH *handler.ApprovalHandler,
	ruleH *handler.RuleHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		authHandler:     authH,
		approvalHandler: approvalH,
		ruleHandler:     ruleH,
		auditHandler:    auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		if s.authHandler != nil {
			r.Post("/auth/token", s.authHandler.Login)
		}
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Human-in-the-loop (Approvals)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeApprover))
			r.Get("/", s.approvalHandler.List)        // Очередь запросов на проверку
			r.Delete("/", s.approvalHandler.Cleanup) // Уборка решенных заявок
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				r.Post("/decide", s.approvalHandler.Decide)   // Approve/Reject + Publish
				r.Post("/dismiss", s.approvalHandler.Dismiss) // Закрыт без ответа = отказ
			})
		})

		// Таблица индикаторов риска
		if s.ruleHandler != nil {
			r.Route("/v1/rules", func(r chi.Router) {
				r.Use(auth.RequireScope(domain.ScopeRules))
				r.Get("/", s.ruleHandler.List)
				r.Post("/", s.ruleHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.ruleHandler.Get)
					r.Put("/", s.ruleHandler.Update)
					r.Delete("/", s.ruleHandler.Delete)
				})
			})
		}

		// Аудит и Логи (Observability)
		if s.auditHandler != nil {
			r.Get("/v1/audit", s.auditHandler.GetLogs)
		}
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
