// Package server serves the page-info and media endpoints the preview client
// reads, backed by the wiki's action API and its media and data
// repositories.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pders01/searchpreview/internal/config"
	"github.com/pders01/searchpreview/internal/debuglog"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg      config.ServerConfig
	wikiID   string
	language string
	upstream *upstream
	log      *debuglog.FieldLogger
}

func New(cfg *config.Config) *Server {
	return &Server{
		cfg:      cfg.Server,
		wikiID:   cfg.Wiki.ID,
		language: cfg.Wiki.Language,
		upstream: newUpstream(cfg.API.HTTPTimeout, cfg.API.UserAgent),
		log:      debuglog.WithFields(map[string]any{"component": "server"}),
	}
}

// Handler returns the router. Routes are mounted both at the root and under
// /w/rest.php so the api client can use the server as its base URL either
// way.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler)

	routes := func(r chi.Router) {
		r.Get("/searchvue/v0/page/{title}/{field}", s.pageInfoHandler)
		r.Get("/searchvue/v0/page/{title}", s.pageInfoHandler)
		r.Get("/searchvue/v0/media/{qid}", s.mediaHandler)
	}
	r.Group(routes)
	r.Route("/w/rest.php", routes)

	return r
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.With("request_id", middleware.GetReqID(r.Context())).
			With("status", ww.Status()).
			Debugf("%s %s %dB in %s", r.Method, r.URL.Path, ww.BytesWritten(), time.Since(start))
	})
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debuglog.Errorf("encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
