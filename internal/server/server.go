package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fitcoach/internal/config"
	"fitcoach/internal/handlers"
	"fitcoach/internal/middleware"
)

// NewEngine returns the gin router serving every route under /api.
func NewEngine(cfg *config.AppConfig, log zerolog.Logger, set handlers.HandlerSet) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.AllowCORSOrigins),
	)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method_not_allowed"})
	})

	set.Routes(r.Group("/api"))
	return r
}

type HTTPServer struct {
	srv *http.Server
	tls config.TLSConfig
	log zerolog.Logger
}

func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, set handlers.HandlerSet) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
			Handler:           NewEngine(cfg, log, set),
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
			IdleTimeout:       cfg.HTTP.IdleTimeout,
		},
		tls: cfg.TLS,
		log: log.With().Str("component", "http").Logger(),
	}
}

func (s *HTTPServer) Addr() string { return s.srv.Addr }

// Start blocks until the server stops. A graceful Shutdown returns nil.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Bool("tls", s.tls.Enabled).Msg("listening")

	var err error
	if s.tls.Enabled {
		err = s.srv.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
	} else {
		err = s.srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve %s: %w", s.srv.Addr, err)
}

// Shutdown drains plain HTTP requests. Upgraded websocket connections are
// invisible to net/http and are closed by the hub.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("draining")
	return s.srv.Shutdown(ctx)
}
