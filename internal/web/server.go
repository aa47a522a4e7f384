// internal/web/server.go

// Package web serves the staff front end: the HTML page, the JSON API and the
// change event stream.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"libradesk/internal/audit"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/membership"
	"libradesk/internal/store"
	"libradesk/internal/views"
)

// Services are the collaborators the front end drives.
type Services struct {
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	Store       *store.Store
	Projector   *views.Projector
	// Auditor is optional; without it /api/v1/audit answers 404.
	Auditor *audit.Auditor
}

type Server struct {
	svc       Services
	logger    *slog.Logger
	jwtSecret []byte
	limiter   *rate.Limiter
	heartbeat time.Duration
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJWTSecret requires every request to carry an HS256 token signed with secret.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.jwtSecret = []byte(secret)
		}
	}
}

// WithRateLimit throttles mutating requests to perMinute with the given burst.
func WithRateLimit(perMinute, burst int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
		}
	}
}

// WithHeartbeat sets how often idle event streams receive a keep-alive comment.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = d
	}
}

func NewServer(svc Services, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		logger:    slog.Default(),
		heartbeat: 25 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.throttle)

		r.Get("/", s.handlePage)
		r.Get("/events", s.handleEvents)
		r.Route("/forms", func(r chi.Router) {
			r.Post("/books", s.handleAddBook)
			r.Post("/members", s.handleRegisterMember)
			r.Post("/members/deactivate", s.handleDeactivateMember)
			r.Post("/loans", s.handleIssueLoan)
			r.Post("/loans/return", s.handleReturnLoan)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/board", s.handleBoard)
			r.Get("/books", s.handleBooks)
			r.Get("/members", s.handleMembers)
			r.Get("/loans/open", s.handleOpenLoans)
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/audit", s.handleAudit)

			catalog.NewHandler(s.svc.Catalog).Routes(r)
			membership.NewHandler(s.svc.Membership).Routes(r)
			circulation.NewHandler(s.svc.Circulation).Routes(r)
		})
	})
	return r
}
