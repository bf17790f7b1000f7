package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/infra/auth"
)

// Server — HTTP-поверхность шлюза допуска: запросы операций от агентов
// и консоль оператора (HITL решения, границы, агенты, аудит)
type Server struct {
	router *chi.Mux
	logger *zap.Logger

	authValidator auth.TokenValidator

	authHandler      *AuthHandler
	operationHandler *OperationHandler
	agentHandler     *AgentHandler
	boundaryHandler  *BoundaryHandler
	statusHandler    *StatusHandler
	auditHandler     *AuditHandler
}

func New(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *AuthHandler,
	operationH *OperationHandler,
	agentH *AgentHandler,
	boundaryH *BoundaryHandler,
	statusH *StatusHandler,
	auditH *AuditHandler,
) *Server {
	s := &Server{
		router:           chi.NewRouter(),
		logger:           logger.Named("http"),
		authValidator:    validator,
		authHandler:      authH,
		operationHandler: operationH,
		agentHandler:     agentH,
		boundaryHandler:  boundaryH,
		statusHandler:    statusH,
		auditHandler:     auditH,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Допуск операций + HITL решения
		r.Route("/v1/operations", func(r chi.Router) {
			r.Post("/", s.operationHandler.Request) // Запрос автономной операции
			r.Get("/", s.operationHandler.List)     // Очередь решений (?status=)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.operationHandler.Get)
				r.Post("/approve", s.operationHandler.Approve) // Ручной апрув
				r.Post("/reject", s.operationHandler.Reject)   // Отклонение с причиной
			})
		})

		// Агенты и профили доверия
		r.Route("/v1/agents", func(r chi.Router) {
			r.Post("/", s.agentHandler.Register) // Регистрация + TrustProfile
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/trust", s.agentHandler.GetTrust)
				r.Put("/permission", s.agentHandler.SetPermission)
				r.Post("/violation", s.agentHandler.RecordViolation)
				r.Post("/suspend", s.agentHandler.Suspend)     // Отстранение от автономии
				r.Post("/reinstate", s.agentHandler.Reinstate) // Возврат права
			})
		})

		// Границы безопасности
		r.Route("/v1/boundaries", func(r chi.Router) {
			r.Get("/", s.boundaryHandler.List)
			r.Post("/", s.boundaryHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.boundaryHandler.Get)
				r.Put("/", s.boundaryHandler.Update)
				r.Post("/toggle", s.boundaryHandler.Toggle) // Active on/off без удаления
			})
		})

		// Сводка и аудит (Observability)
		r.Get("/v1/status", s.statusHandler.Get)
		r.Get("/v1/audit", s.auditHandler.GetEvents)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
