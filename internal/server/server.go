package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"quoteexport/internal/enrich"
	"quoteexport/internal/export"
	"quoteexport/internal/provider"
	"quoteexport/internal/store"
)

// invalidCategory is the body of a 404 for an unknown export type.
const invalidCategory = "Tipo inválido"

// statusClientClosedRequest is nginx's code for a client that went away
// before the response was ready.
const statusClientClosedRequest = 499

// BatchResolver resolves every code of a category, in order.
type BatchResolver interface {
	ResolveAll(ctx context.Context, codes []string) ([]provider.Record, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Port           string
	Log            zerolog.Logger
	Assets         map[string][]string
	Batch          BatchResolver
	Health         Pinger // optional
	RequestTimeout time.Duration
}

// Server serves category listings and CSV exports.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	assets  map[string][]string
	batch   BatchResolver
	health  Pinger
	timeout time.Duration
}

func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		assets:  cfg.Assets,
		batch:   cfg.Batch,
		health:  cfg.Health,
		timeout: cfg.RequestTimeout,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	s.router.Use(middleware.Compress(5, "text/csv", "application/json", "text/plain"))
}

func (s *Server) setupRoutes() {
	for name, codes := range s.assets {
		s.router.Get("/"+name, s.handleList(codes))
	}
	s.router.Get("/export/{type}", s.handleExport)
	s.router.Get("/ping", s.handlePing)
	s.router.Get("/healthz", s.handleHealth)
}

// Handler exposes the router, middleware included.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Int("categories", len(s.assets)).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleList(codes []string) http.HandlerFunc {
	if codes == nil {
		codes = []string{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(codes)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	codes, ok := s.assets[typ]
	if !ok {
		writeText(w, http.StatusNotFound, invalidCategory)
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	recs, err := s.batch.ResolveAll(ctx, codes)
	if err != nil {
		s.fail(w, r, typ, err)
		return
	}
	body, err := export.Bytes(enrich.Intervals(recs))
	if err != nil {
		s.fail(w, r, typ, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, typ))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "pong")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			writeText(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "ok")
}

// fail maps err onto a status and logs it once.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, typ string, err error) {
	status := statusFor(err)
	if status == statusClientClosedRequest {
		s.log.Info().
			Str("type", typ).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("export abandoned by client")
		writeText(w, status, "Client Closed Request")
		return
	}
	s.log.Error().
		Err(err).
		Str("type", typ).
		Int("status", status).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("export failed")
	writeText(w, status, http.StatusText(status))
}

// statusFor classifies err. Cancellation is checked first because the
// fetcher wraps it in provider.ErrUpstream.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, provider.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrStorage):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// writeText writes body verbatim, without the newline http.Error appends.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
