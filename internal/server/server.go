// Package server is the persistence backend for the block editor. It
// serves stored page documents, accepts save / revert / upload / file
// resolution requests, and pushes change notifications to connected
// editors over a websocket status channel.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bengine/bengine/internal/assets"
	"github.com/bengine/bengine/internal/config"
	"github.com/bengine/bengine/internal/store"
)

// Server wires the store, asset manager, and status hub behind an HTTP
// router.
type Server struct {
	cfg     *config.Config
	store   store.Store
	assets  *assets.Manager
	hub     *Hub
	watcher *Watcher
	log     *zap.SugaredLogger

	httpServer  *http.Server
	rateLimDone <-chan struct{}
	cancel      context.CancelFunc
}

// New builds a Server from its dependencies. The watcher is optional
// and only started when the content config enables it.
func New(cfg *config.Config, st store.Store, am *assets.Manager, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		cfg:    cfg,
		store:  st,
		assets: am,
		hub:    NewHub(logger),
		log:    logger,
	}

	if cfg.Content.WatchEnabled() {
		w, err := NewWatcher(cfg.Content.GetDir(), func(page string) error {
			s.hub.Broadcast(StatusEvent{Kind: "reload", Page: page})
			return nil
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("starting content watcher: %w", err)
		}
		s.watcher = w
	}
	return s, nil
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(SecurityHeaders())
	r.Use(chimw.Timeout(5 * time.Minute))

	if origins := s.cfg.API.GetCORSOrigins(); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	limiter, done := RateLimit(ctx,
		s.cfg.API.GetRateLimitRPS(),
		s.cfg.API.GetRateLimitBurst(), 0)
	s.rateLimDone = done
	r.Use(limiter)

	r.Get("/healthz", s.handleHealth)
	r.Get("/content/*", s.handleContent)
	r.Post("/save", s.handleSave)
	r.Post("/revertblocks", s.handleRevert)
	r.Post("/upload", s.handleUpload)
	r.Post("/files", s.handleFiles)
	r.Get("/status", s.hub.Handle)
	return r
}

// Start runs the HTTP server until ctx is cancelled or ListenAndServe
// fails.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watcher != nil {
		s.watcher.Start()
	}
	s.log.Infow("listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the watcher, draining connections with a short grace
// period.
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
