package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bft-labs/meetrec/internal/adapters/ws"
	"github.com/bft-labs/meetrec/internal/app"
	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/pkg/log"
)

const (
	startPath = "/v1/recording/start"
	stopPath  = "/v1/recording/stop"
	statePath = "/v1/state"
	tabsPath  = "/v1/tabs"
)

// shutdownGrace bounds how long in-flight requests may run after the
// server is asked to stop.
const shutdownGrace = 5 * time.Second

// Service is the coordinator surface served over HTTP.
type Service interface {
	Start(ctx context.Context, tabID string, includeMic bool) (app.StartResult, error)
	Stop(ctx context.Context) error
	State() domain.SharedState
	Tabs() []app.TabStatus
	CheckMeetPage(ctx context.Context, tabID string) (bool, error)
}

// NewRouter builds the coordinator API. connect serves agent websocket
// upgrades and may be nil.
func NewRouter(svc Service, connect http.Handler, logger log.Logger) *gin.Engine {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	h := &handler{svc: svc, logger: logger}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	v1 := r.Group("/v1")
	{
		v1.POST("/recording/start", h.start)
		v1.POST("/recording/stop", h.stop)
		v1.GET("/state", h.state)
		v1.GET("/tabs", h.tabs)
		v1.GET("/tabs/:id/meet", h.checkMeetPage)
	}
	if connect != nil {
		r.GET(ws.ConnectPath, gin.WrapH(connect))
	}
	return r
}

type handler struct {
	svc    Service
	logger log.Logger
}

func (h *handler) start(c *gin.Context) {
	var req domain.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.CommandReply{Error: "invalid request: " + err.Error()})
		return
	}
	if req.TabID == "" {
		c.JSON(http.StatusBadRequest, domain.CommandReply{Error: "tabId is required"})
		return
	}

	res, err := h.svc.Start(c.Request.Context(), req.TabID, req.IncludeMic)
	if err != nil {
		c.JSON(statusFor(err), domain.ReplyFor(err))
		return
	}
	reply := domain.ReplyFor(nil)
	reply.MicDenied = res.MicDenied
	c.JSON(http.StatusOK, reply)
}

func (h *handler) stop(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), domain.ReplyFor(err))
		return
	}
	c.JSON(http.StatusOK, domain.ReplyFor(nil))
}

func (h *handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.State())
}

func (h *handler) tabs(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Tabs())
}

func (h *handler) checkMeetPage(c *gin.Context) {
	ok, err := h.svc.CheckMeetPage(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), domain.ReplyFor(err))
		return
	}
	c.JSON(http.StatusOK, domain.MeetPageReply{IsMeetPage: ok})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyRecording), errors.Is(err, domain.ErrNoActiveRecording):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTabUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

func requestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			log.String("method", c.Request.Method),
			log.String("path", c.FullPath()),
			log.Int("status", c.Writer.Status()),
			log.Duration("latency", time.Since(start)),
		)
	}
}

// Server runs a router on a TCP address until its context ends.
type Server struct {
	addr    string
	handler http.Handler
	logger  log.Logger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Coordinator API listening", log.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", log.Err(err))
		return err
	}
	return nil
}
