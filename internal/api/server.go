// Package api is the local HTTP boundary the UI shell drives the editor
// through. Every editing command maps to one route; exports run in the
// background and stream their progress over a WebSocket.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/ffmpeg"
	"github.com/lamoeditor/lamoeditor/internal/session"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// SourceCatalog lists and forgets probed sources.
type SourceCatalog interface {
	GetSources(ctx context.Context) ([]*catalog.Source, error)
	Forget(ctx context.Context, path string) error
}

type ServerConfig struct {
	Port       int
	Version    string
	Session    *session.Session
	Exports    *export.Orchestrator
	Repository catalog.Repository
	Catalog    SourceCatalog
	Doctor     *ffmpeg.CachedDoctor
	Logger     *slog.Logger
	StartTime  time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler: router,
			// Media streams and event sockets stay open, so no write timeout.
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
