// Package server exposes dump and plan over HTTP.
//
// Routes:
//
//	GET  /healthz   liveness, pings the database and the store when configured
//	GET  /v1/dump   YAML specification of the live database
//	POST /v1/plan   YAML target in the body, JSON statements out (?revert=true swaps sides)
//	POST /v1/diff   JSON {"current": YAML, "target": YAML}, JSON statements out
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/dbspec/internal/catalog"
	"github.com/koustreak/dbspec/internal/catalog/pgcatalog"
	"github.com/koustreak/dbspec/internal/database"
	"github.com/koustreak/dbspec/internal/ddl"
	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
	"github.com/koustreak/dbspec/internal/ident"
	"github.com/koustreak/dbspec/internal/logger"
	"github.com/koustreak/dbspec/internal/model"
	"github.com/koustreak/dbspec/internal/spec"
)

// maxBody bounds request documents.
const maxBody = 16 << 20

// Options configure the handlers.
type Options struct {
	Catalog catalog.Options
	Spec    spec.Options
	Policy  *ident.Policy
	Logger  *logger.Logger

	// Store holds the specification files; /healthz pings it when set.
	Store filestore.Store

	// RequestTimeout bounds each request; zero means no limit.
	RequestTimeout time.Duration
}

// Server serves the HTTP API. db may be nil, in which case only /healthz
// and /v1/diff are useful.
type Server struct {
	db    database.DB
	opts  Options
	log   *logger.Logger
	synth *ddl.Synthesizer
	dump  func(ctx context.Context) (*model.Database, error)
}

// New creates a Server reading the catalog through db.
func New(db database.DB, opts Options) *Server {
	if opts.Policy == nil {
		opts.Policy = ident.DefaultPolicy()
	}
	opts.Catalog.Policy = opts.Policy
	log := logger.OrNop(opts.Logger)
	if opts.Catalog.Logger == nil {
		opts.Catalog.Logger = log
	}

	s := &Server{
		db:    db,
		opts:  opts,
		log:   log,
		synth: ddl.New(ddl.Options{Policy: opts.Policy, Logger: log}),
	}
	s.dump = func(ctx context.Context) (*model.Database, error) {
		if s.db == nil {
			return nil, errs.New(errs.ErrKindConnectionFailed, "no database configured")
		}
		return pgcatalog.Dump(ctx, s.db, s.opts.Catalog)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	if s.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/dump", s.handleDump)
		r.Post("/plan", s.handlePlan)
		r.Post("/diff", s.handleDiff)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()
	s.log.With().Str("addr", addr).Logger().Info("server listening")

	select {
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "server failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "server shutdown", err)
	}
	s.log.Info("server stopped")
	return nil
}

// accessLog writes one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.HTTPEvent().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
