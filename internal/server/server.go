// Package server exposes the triage pipeline and billing ledger over HTTP.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hubeiqiao/Literature-screening/internal/ledger"
	"github.com/hubeiqiao/Literature-screening/internal/pipeline"
	"github.com/hubeiqiao/Literature-screening/internal/store"
	"github.com/hubeiqiao/Literature-screening/internal/webhook"
)

// DefaultCallerHeader is where the caller identity is read from when no
// custom resolver is configured.
const DefaultCallerHeader = "X-Caller-ID"

// CallerResolver extracts the caller identity from a request. Deployments
// that terminate auth upstream plug their own resolver in; the default
// trusts a header set by the proxy.
type CallerResolver func(*http.Request) string

// HeaderCallerResolver resolves the caller from a fixed request header.
func HeaderCallerResolver(header string) CallerResolver {
	if header == "" {
		header = DefaultCallerHeader
	}
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// Server routes HTTP traffic to the pipeline, ledger, and webhook ingester.
type Server struct {
	pipeline      *pipeline.Pipeline
	ledger        *ledger.Ledger
	store         store.Store
	ingester      *webhook.Ingester
	webhookSecret string
	resolveCaller CallerResolver
	corsOrigins   []string
}

// Option configures the server.
type Option func(*Server)

// WithCallerResolver overrides the default header-based caller resolver.
func WithCallerResolver(resolver CallerResolver) Option {
	return func(s *Server) {
		s.resolveCaller = resolver
	}
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// New creates a server. An empty webhookSecret disables the webhook route.
func New(p *pipeline.Pipeline, led *ledger.Ledger, st store.Store, ing *webhook.Ingester, webhookSecret string, opts ...Option) *Server {
	s := &Server{
		pipeline:      p,
		ledger:        led,
		store:         st,
		ingester:      ing,
		webhookSecret: webhookSecret,
		resolveCaller: HeaderCallerResolver(DefaultCallerHeader),
		corsOrigins:   []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", DefaultCallerHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/triage", s.handleTriage)
		r.Get("/runs", s.handleListRuns)
		r.Route("/billing", func(r chi.Router) {
			r.Get("/balance", s.handleBalance)
			r.Get("/transactions", s.handleTransactions)
			if s.webhookSecret != "" {
				r.Post("/webhook", s.handleWebhook)
			}
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
