// Package httpapi exposes detection, conversion and splitting over HTTP.
//
// Routes:
//
//	GET  /healthz
//	POST /api/v1/detect   body: text sample             -> JSON profile
//	POST /api/v1/convert  body: delimited text          -> SQL script
//	POST /api/v1/split    body: SQL script              -> JSON chunks
//
// Bodies are read whole and capped at Options.MaxBodyBytes. Input problems
// (undetectable dialect, unterminated statement) answer 422.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"sqlconv/internal/dialect"
	"sqlconv/internal/inference"
	"sqlconv/internal/logging"
	"sqlconv/internal/metrics"
	"sqlconv/internal/source"
	"sqlconv/internal/splitter"
	"sqlconv/internal/sqlgen"
)

// Options configures the handlers.
type Options struct {
	Inference inference.Config
	SQL       sqlgen.Config
	Dialect   dialect.Options

	// SourceOptions are the csv adapter defaults; query parameters override
	// them per request.
	SourceOptions source.Options

	// SplitMaxLines is used when a split request has no max_lines.
	SplitMaxLines int

	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// Server is the HTTP surface.
type Server struct {
	opts   Options
	engine *inference.Engine
	logger *zap.Logger
	router *chi.Mux
	server *http.Server
}

// New builds a server with its routes.
func New(opts Options, logger *zap.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.SplitMaxLines <= 0 {
		opts.SplitMaxLines = splitter.DefaultMaxLines
	}
	s := &Server{
		opts:   opts,
		engine: inference.New(opts.Inference),
		logger: logging.OrNop(logger),
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.observe)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/detect", s.handleDetect)
		r.Post("/convert", s.handleConvert)
		r.Post("/split", s.handleSplit)
	})
}

// Handler returns the router; tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return s.server.Shutdown(shutdownCtx)
	}
}

// observe logs each request and records request metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		d := time.Since(start)
		metrics.RecordHTTP(status, d)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", d),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
