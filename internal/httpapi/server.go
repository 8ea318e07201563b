// Package httpapi exposes the account tracker over a small JSON REST API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rewired-gh/crashoracle/internal/bankroll"
	"github.com/rewired-gh/crashoracle/internal/learning"
	"github.com/rewired-gh/crashoracle/internal/logger"
	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service is the subset of the tracker the API needs.
type Service interface {
	RecordOutcome(ctx context.Context, accountID string, isWin bool, multiplier decimal.Decimal) (models.Outcome, error)
	UndoLastOutcome(ctx context.Context, accountID string) (models.Outcome, error)
	ClearHistory(ctx context.Context, accountID string) (int64, error)
	History(ctx context.Context, accountID string) ([]models.Outcome, error)

	Learn(ctx context.Context, accountID string) (learning.Result, error)
	IdentifiedPatterns(ctx context.Context, accountID string) ([]models.RankedPattern, error)

	Suggest(ctx context.Context, accountID string) (*models.Suggestion, []models.Suggestion, error)
	Suggestions(ctx context.Context, accountID string, limit int) ([]models.Suggestion, error)
	ResolveSuggestion(ctx context.Context, accountID, id string, res models.Resolution) (models.Suggestion, error)
	ClearSuggestions(ctx context.Context, accountID string) (int64, error)

	Cycle(ctx context.Context, accountID string) (models.BankrollCycle, error)
	UpdateSettings(ctx context.Context, accountID string, s bankroll.Settings) (models.BankrollCycle, error)
	Activate(ctx context.Context, accountID string) (models.BankrollCycle, error)
	Deactivate(ctx context.Context, accountID string) (models.BankrollCycle, error)
	ReportResult(ctx context.Context, accountID string, isWin bool) (models.BankrollCycle, bankroll.Report, error)
}

// Server is the HTTP front of the tracker.
type Server struct {
	router *chi.Mux
	server *http.Server
	svc    Service
	log    zerolog.Logger
}

// New creates a server listening on addr. An empty allowedOrigins list allows
// any origin.
func New(svc Service, addr string, allowedOrigins []string) *Server {
	s := &Server{
		router: chi.NewRouter(),
		svc:    svc,
		log:    logger.Component("http"),
	}

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	s.setupMiddleware(allowedOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(allowedOrigins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/accounts/{accountID}", func(r chi.Router) {
		r.Route("/outcomes", func(r chi.Router) {
			r.Post("/", s.handleRecordOutcome)
			r.Get("/", s.handleHistory)
			r.Delete("/", s.handleDeleteOutcomes)
		})

		r.Route("/patterns", func(r chi.Router) {
			r.Get("/", s.handleIdentifiedPatterns)
			r.Post("/learn", s.handleLearn)
		})

		r.Route("/suggestions", func(r chi.Router) {
			r.Post("/", s.handleSuggest)
			r.Get("/", s.handleSuggestions)
			r.Delete("/", s.handleClearSuggestions)
			r.Post("/{suggestionID}/resolve", s.handleResolveSuggestion)
		})

		r.Route("/bank", func(r chi.Router) {
			r.Get("/", s.handleCycle)
			r.Put("/", s.handleUpdateSettings)
			r.Post("/activate", s.handleActivate)
			r.Post("/deactivate", s.handleDeactivate)
			r.Post("/results", s.handleReportResult)
		})
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("address", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
