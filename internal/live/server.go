package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter returns the HTTP routes of the live view.
func NewRouter(hub *Hub, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/snapshot", func(c *gin.Context) {
		latest := hub.Latest()
		if latest == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot received yet"})
			return
		}
		c.Data(http.StatusOK, "application/json", latest)
	})
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

// Server runs the live view in the background.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer returns a server listening on addr once started.
func NewServer(addr string, hub *Hub, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(hub, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in a new goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Live view listening", slog.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Live view server stopped", slog.Any("error", err))
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
