package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/agentguard-core/internal/infra/auth"
	"github.com/xela07ax/agentguard-core/internal/server/handler"
	"go.uber.org/zap"
)

// Server — HTTP-граница ядра. Два периметра:
//   - агентский (X-Agent-ID / X-API-Key): оценка, маскирование, поллинг заявок;
//   - операторский (RS256 JWT): каталог политик, очередь решений, агенты, сводка.
type Server struct {
	router *chi.Mux
	logger *zap.Logger

	agentAuth    func(http.Handler) http.Handler
	operatorAuth func(http.Handler) http.Handler

	evaluateHandler *handler.EvaluateHandler
	maskHandler     *handler.MaskHandler
	approvalHandler *handler.ApprovalHandler
	policyHandler   *handler.PolicyHandler
	agentHandler    *handler.AgentHandler
	overviewHandler *handler.OverviewHandler
}

func New(
	logger *zap.Logger,
	validator auth.TokenValidator,
	agentDir handler.AgentDirectory,
	blocklist handler.Blocklist,
	evaluateH *handler.EvaluateHandler,
	maskH *handler.MaskHandler,
	approvalH *handler.ApprovalHandler,
	policyH *handler.PolicyHandler,
	agentH *handler.AgentHandler,
	overviewH *handler.OverviewHandler,
) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		logger:          logger.Named("api"),
		agentAuth:       handler.NewAgentAuthMiddleware(agentDir, blocklist, logger),
		operatorAuth:    auth.NewMiddleware(validator, logger),
		evaluateHandler: evaluateH,
		maskHandler:     maskH,
		approvalHandler: approvalH,
		policyHandler:   policyH,
		agentHandler:    agentH,
		overviewHandler: overviewH,
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
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. АГЕНТСКИЙ ПЕРИМЕТР (Hot Path) ---
	r.Group(func(r chi.Router) {
		r.Use(s.agentAuth)

		r.Post("/v1/evaluate", s.evaluateHandler.Evaluate)
		r.Post("/v1/mask", s.maskHandler.Apply)

		// Поллинг: агент ждет решения оператора по своей заявке
		r.Get("/v1/approvals/{id}/status", s.approvalHandler.GetStatus)
	})

	// --- 4. ОПЕРАТОРСКИЙ ПЕРИМЕТР (Требует RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(s.operatorAuth)

		r.Get("/api/v1/overview", s.overviewHandler.Get)

		// Управление политиками
		r.Route("/v1/policies", func(r chi.Router) {
			r.Get("/", s.policyHandler.List)
			r.Post("/", s.policyHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.policyHandler.Get)
				r.Put("/", s.policyHandler.Update)
				r.Post("/toggle", s.policyHandler.Toggle)
				r.Delete("/", s.policyHandler.Delete)
			})
		})

		// Human-in-the-loop (Очередь решений)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List)
			r.Get("/pending-count", s.approvalHandler.PendingCount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				r.Post("/decide", s.approvalHandler.Decide)
			})
		})

		// Управление агентами (статус, мгновенное отключение)
		r.Route("/v1/agents/{id}", func(r chi.Router) {
			r.Get("/", s.agentHandler.Get)
			r.Post("/disable", s.agentHandler.Disable)
			r.Post("/enable", s.agentHandler.Enable)
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
