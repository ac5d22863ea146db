// Package status serves a read-only HTTP view of the running backend.
//
// Endpoints:
//
//   - GET /healthz: liveness, always 200 while the process runs
//   - GET /status: the backend snapshot as JSON; 503 while disconnected
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/keepmind9/discordbackend/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Source provides the snapshot served on /status
type Source interface {
	Snapshot() bot.Snapshot
}

// Response is the /status payload
type Response struct {
	bot.Snapshot
	Uptime string `json:"uptime"`
}

// Server is the HTTP status server
type Server struct {
	source    Source
	startedAt time.Time
	handler   http.Handler

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer builds a status server for source
func NewServer(source Source) *Server {
	s := &Server{source: source, startedAt: time.Now()}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", s.handleStatus)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Component("status").WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("status-request")
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.source.Snapshot()
	code := http.StatusOK
	if !snap.Connected {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, Response{
		Snapshot: snap,
		Uptime:   time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: constants.StatusHTTPTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	log := logger.Component("status").WithField("addr", ln.Addr().String())
	log.Info("status-server-starting")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Error("status-server-failed")
		}
	}()
	return nil
}

// Addr returns the bound address, empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	logger.Component("status").Info("status-server-stopping")
	return srv.Shutdown(ctx)
}

// Fetch queries a running status server at baseURL
func Fetch(ctx context.Context, baseURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.StatusHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query status server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != constants.HTTPSuccessStatusCode && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, fmt.Errorf("status server returned %s", resp.Status)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &out, nil
}
