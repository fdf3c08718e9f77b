// Package server provides the HTTP API and the embedded upload page.
//
// It exposes endpoints for template scanning, schedule validation,
// preflight checks, certificate assembly and wizard drafts.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/auth"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/bond"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/drafts"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/web"
)

// Options configures a Server.
type Options struct {
	Version        string
	BasePath       string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	CORSOrigins    []string
	// Numbering supplies defaults for runs that leave numbering unset.
	Numbering bond.NumberingConfig
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	opts     Options
	log      *zap.Logger
	asm      *assembly.Assembler
	drafts   drafts.Store
	resolver *auth.Resolver
}

// New creates a configured server with all routes and middleware.
func New(opts Options, asm *assembly.Assembler, store drafts.Store, resolver *auth.Resolver, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if resolver == nil {
		resolver = auth.NewResolver(nil)
	}
	s := &Server{
		opts:     opts,
		log:      log,
		asm:      asm,
		drafts:   store,
		resolver: resolver,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler, mounted under the base path.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.opts.RequestTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr), zap.String("base_path", s.opts.BasePath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	origins := []string{"*"}
	if len(s.opts.CORSOrigins) > 0 {
		origins = s.opts.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Bond-Count", "X-Orphaned-Rows", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/info", s.handleInfo)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/tags", s.handleTags)
		r.Post("/templates/scan", s.handleScan)
		r.Post("/schedules/validate", s.handleValidateSchedules)
		r.Post("/preflight", s.handlePreflight)
		r.Post("/assemble", s.handleAssemble)

		r.Get("/drafts", s.handleListDrafts)
		r.Post("/drafts", s.handleCreateDraft)
		r.Get("/drafts/{id}", s.handleGetDraft)
		r.Put("/drafts/{id}", s.handleUpdateDraft)
		r.Delete("/drafts/{id}", s.handleDeleteDraft)
		r.Post("/drafts/{id}/assemble", s.handleAssembleDraft)
	})

	s.mountStatic(r)

	base := strings.TrimRight(s.opts.BasePath, "/")
	if base == "" {
		return r
	}
	root := chi.NewRouter()
	root.Mount(base, r)
	root.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, base+"/", http.StatusFound)
	})
	return root
}

// mountStatic serves the embedded upload page.
func (s *Server) mountStatic(r chi.Router) {
	static, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		s.log.Warn("web UI not available", zap.Error(err))
		return
	}
	fileServer := http.StripPrefix(strings.TrimRight(s.opts.BasePath, "/"), http.FileServer(http.FS(static)))
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, req)
	})
}

// authenticate resolves the caller and stores the identity in the request
// context. Unknown keys are rejected before any handler runs.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.resolver.Resolve(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// subject returns the caller resolved by authenticate.
func subject(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return id.Subject
	}
	return auth.Anonymous
}
