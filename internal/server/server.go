// Package server exposes the renderer host over HTTP: the controller
// channel as a websocket, plus health and metrics endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pagehost/renderer/internal/channel"
	"github.com/pagehost/renderer/internal/config"
	"github.com/pagehost/renderer/internal/correlate"
	"github.com/pagehost/renderer/internal/history"
	"github.com/pagehost/renderer/internal/logging"
	"github.com/pagehost/renderer/internal/monitoring"
	"github.com/pagehost/renderer/internal/page"
	"github.com/pagehost/renderer/internal/render/static"
	"github.com/pagehost/renderer/internal/runloop"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The host binds to loopback; the controller is trusted.
		return true
	},
}

const blankDocument = `<html><head><title>about:blank</title></head><body></body></html>`

// Server wraps the HTTP server and shared dependencies.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	registry *prometheus.Registry

	// ledger allocates document ids process-wide, shared by every page.
	ledger *correlate.Ledger
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Initializing renderer host",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Bool("strict", cfg.Strict),
	)

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		ledger:   correlate.NewLedger(cfg.Strict, logger),
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)
	router.GET("/channel", s.handleChannel)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	s.router = router
	s.http = &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	logger.Info("Server initialized")
	return s, nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	err := s.http.Shutdown(ctx)
	s.logger.Sync()
	return err
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"next_document_id": s.ledger.Peek(),
	})
}

// handleChannel upgrades a controller connection and runs a page for its
// lifetime. Each connection owns one page, one run loop and one static
// rendering collaborator.
func (s *Server) handleChannel(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	view, err := static.NewView(static.FrameSpec{HTML: blankDocument, Visible: true})
	if err != nil {
		s.logger.Error("blank document parse failed", zap.Error(err))
		ws.Close()
		return
	}

	var limiter *rate.Limiter
	if s.config.RateLimit.Enabled {
		limiter = rate.NewLimiter(
			rate.Limit(s.config.RateLimit.CommandsPerSecond),
			s.config.RateLimit.Burst,
		)
	}
	conn := channel.NewConn(ws, channel.ConnOptions{
		Limiter: limiter,
		Metrics: s.metrics,
		Logger:  s.logger,
	})

	loop := runloop.New(256)
	loop.Start()

	pg := page.New(page.Config{
		Capture: history.Config{
			CaptureDelay:       s.config.Capture.Delay,
			ForcedCaptureDelay: s.config.Capture.ForcedDelay,
		},
	}, s.ledger, view, loop, conn, s.logger, s.metrics)
	view.SetDelegate(pg)
	view.SetReporter(pg)

	s.metrics.Connections.Inc()
	s.logger.Info("controller connected",
		zap.String("conn_id", conn.ID().String()),
		zap.String("page_id", pg.ID().String()))

	err = conn.Pump(pg)

	loop.Post(pg.Close)
	loop.Stop()
	conn.Close()
	s.metrics.Connections.Dec()

	if err != nil {
		s.logger.Warn("controller disconnected", zap.Error(err))
		return
	}
	s.logger.Info("controller disconnected", zap.String("conn_id", conn.ID().String()))
}
