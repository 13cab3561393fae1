// Package httpserver serves the read-only status API.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/amiharvest/internal/session"
)

// StatusProvider supplies the live pipeline state served by the API.
type StatusProvider interface {
	SourceStatuses() []session.Status
	EventsWritten() int64
}

// Server exposes harvester health and per-source session state over HTTP.
type Server struct {
	addr      string
	provider  StatusProvider
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a status API server.
func NewServer(addr string, provider StatusProvider) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     addr,
		provider: provider,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s.register(r)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) register(r *gin.Engine) {
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/sources", s.handleSources)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime":         time.Since(s.startTime).String(),
		"events_written": s.provider.EventsWritten(),
	})
}

func (s *Server) handleSources(c *gin.Context) {
	statuses := s.provider.SourceStatuses()
	streaming := 0
	for _, st := range statuses {
		if st.State == session.StateStreaming.String() {
			streaming++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"streaming": streaming,
		"sources":   statuses,
	})
}
