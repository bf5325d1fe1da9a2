// Package api exposes the session manager over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-copy-watcher/internal/anchor"
	"wallet-copy-watcher/internal/domain"
	"wallet-copy-watcher/internal/observability"
	"wallet-copy-watcher/internal/watch"
)

// Sessions is the subset of watch.Manager the API needs.
type Sessions interface {
	Start(ctx context.Context, req watch.StartRequest) (watch.Info, error)
	Get(id string) (watch.Info, error)
	List() []watch.Info
	Stop(ctx context.Context, id string) (watch.Result, error)
}

// Agent reads the agent program's on-chain accounts.
type Agent interface {
	UserAccount(ctx context.Context, user string) (*anchor.UserAccount, error)
	GlobalConfig(ctx context.Context, address string) (*anchor.GlobalConfig, error)
}

// Config configures the API server.
type Config struct {
	Addr        string
	Sessions    Sessions
	Agent       Agent // optional; /users and /config answer 501 without it
	Logger      *zap.Logger
	StopTimeout time.Duration
}

// Server serves the control plane.
type Server struct {
	cfg    Config
	logger *zap.Logger
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("api server requires a session manager")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, logger: cfg.Logger.Named("api"), router: gin.New()}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(observability.Handler()))

	s.router.POST("/sessions", s.startSession)
	s.router.GET("/sessions", s.listSessions)
	s.router.GET("/sessions/:id", s.getSession)
	s.router.DELETE("/sessions/:id", s.stopSession)
	s.router.GET("/users/:pubkey", s.getUser)
	s.router.GET("/config/:address", s.getConfig)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("api listening", zap.String("addr", s.cfg.Addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) startSession(c *gin.Context) {
	var req watch.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := s.cfg.Sessions.Start(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, info)
	case errors.Is(err, domain.ErrInvalidTarget), errors.Is(err, anchor.ErrInvalidPubkey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, watch.ErrNoTasksRemaining):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, anchor.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, watch.ErrManagerClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("start session", zap.String("target", req.Target), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.cfg.Sessions.List()})
}

func (s *Server) getSession(c *gin.Context) {
	info, err := s.cfg.Sessions.Get(c.Param("id"))
	if errors.Is(err, watch.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) stopSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.StopTimeout)
	defer cancel()

	res, err := s.cfg.Sessions.Stop(ctx, c.Param("id"))
	switch {
	case errors.Is(err, watch.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "session did not stop in time"})
	case err != nil:
		// The session ran and failed; its result is still meaningful.
		c.JSON(http.StatusOK, gin.H{"result": res, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"result": res})
	}
}

func (s *Server) getUser(c *gin.Context) {
	if s.cfg.Agent == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "agent program not configured"})
		return
	}

	acc, err := s.cfg.Agent.UserAccount(c.Request.Context(), c.Param("pubkey"))
	if err != nil {
		s.accountError(c, "user account", c.Param("pubkey"), err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (s *Server) getConfig(c *gin.Context) {
	if s.cfg.Agent == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "agent program not configured"})
		return
	}

	cfg, err := s.cfg.Agent.GlobalConfig(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.accountError(c, "config account", c.Param("address"), err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) accountError(c *gin.Context, kind, key string, err error) {
	switch {
	case errors.Is(err, anchor.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": kind + " not found"})
	case errors.Is(err, anchor.ErrInvalidPubkey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Warn("read "+kind, zap.String("address", key), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		observability.RecordHTTPLatency("api", c.FullPath(), time.Since(start).Seconds())
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)))
	}
}
