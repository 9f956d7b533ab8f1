// Package status serves a read-only local view of the sync client over HTTP.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/volsync/internal/observability"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

var ErrAddrRequired = errors.New("status: listen address required")

// Report is the body of GET /status.
type Report struct {
	State       string `json:"state"`
	Attempt     int    `json:"attempt"`
	Failures    int    `json:"failures"`
	BackoffMS   int64  `json:"backoff_ms,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Since       string `json:"since"`
	Relay       string `json:"relay"`
	Platform    string `json:"platform"`
	SessionID   string `json:"session_id,omitempty"`
	Peers       int    `json:"peers"`
	LocalVolume *int   `json:"local_volume,omitempty"`
	LastApplied *int   `json:"last_applied,omitempty"`
	Queued      int    `json:"queued"`

	// SessionStartVolume is the local reading the live session opened with.
	SessionStartVolume *int `json:"session_start_volume,omitempty"`
}

type Reporter interface {
	Report() Report
}

type Config struct {
	Addr        string
	CORSOrigins []string
}

type Server struct {
	cfg      Config
	reporter Reporter
	router   *gin.Engine
	started  time.Time
}

func New(cfg Config, reporter Reporter) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.Component("status")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		reporter: reporter,
		router:   r,
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"version": version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.reporter.Report())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Serve listens on cfg.Addr until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// Listen binds cfg.Addr without serving, so a taken port surfaces before
// anything else starts.
func (s *Server) Listen() (net.Listener, error) {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return nil, ErrAddrRequired
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status: listen %s: %w", addr, err)
	}
	return ln, nil
}

// ServeListener serves on ln until ctx is done and owns closing it.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("status.Server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
