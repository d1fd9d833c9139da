package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/registry"
	"trade-mirror-bot/internal/trace"
	"trade-mirror-bot/internal/types"
)

// DefaultStopTimeout bounds how long /stop waits for a task loop to exit.
const DefaultStopTimeout = 30 * time.Second

// Registry is the part of the task registry the control API drives.
type Registry interface {
	Create(ctx context.Context, cfg types.TaskConfig) (string, error)
	Stop(ctx context.Context, id string) error
	List() []types.TaskStatus
}

type startResponse struct {
	TaskID string `json:"task_id"`
}

type stopRequest struct {
	TaskID string `json:"task_id"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Server struct {
	R           *gin.Engine
	reg         Registry
	stopTimeout time.Duration
}

// NewServer wires the control routes and middleware.
func NewServer(reg Registry) *Server {
	g := gin.New()
	g.HandleMethodNotAllowed = true

	// Tracing and request logging
	g.Use(func(cn *gin.Context) {
		ctx, span := trace.StartSpan(cn.Request.Context(), "http "+cn.Request.Method+" "+cn.Request.URL.Path)
		defer span.End()
		cn.Request = cn.Request.WithContext(ctx)

		start := time.Now()
		cn.Next()

		span.SetAttributes(attribute.Int("http.status_code", cn.Writer.Status()))
		logger.Debug(ctx, "HTTP request served",
			"method", cn.Request.Method,
			"path", cn.Request.URL.Path,
			"status", cn.Writer.Status(),
			"ip", cn.ClientIP(),
			"duration", time.Since(start))
	})

	g.Use(gin.Recovery())

	s := &Server{R: g, reg: reg, stopTimeout: DefaultStopTimeout}

	g.POST("/start", s.handleStart)
	g.POST("/stop", s.handleStop)
	g.GET("/running", s.handleRunning)
	g.GET("/healthz", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.R
}

func (s *Server) handleStart(cn *gin.Context) {
	var cfg types.TaskConfig
	if err := cn.ShouldBindJSON(&cfg); err != nil {
		writeError(cn, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ctx := cn.Request.Context()
	id, err := s.reg.Create(ctx, cfg)
	switch {
	case err == nil:
		cn.JSON(http.StatusOK, startResponse{TaskID: id})
	case errors.Is(err, registry.ErrDuplicateTask):
		writeError(cn, http.StatusConflict, fmt.Sprintf("Scraper %s is already running.", cfg.ID))
	case errors.Is(err, types.ErrInvalidConfig):
		writeError(cn, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorWithErr(ctx, "Failed to create task", err, "task_id", cfg.ID)
		writeError(cn, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStop(cn *gin.Context) {
	var req stopRequest
	if err := cn.ShouldBindJSON(&req); err != nil {
		writeError(cn, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(cn.Request.Context(), s.stopTimeout)
	defer cancel()

	err := s.reg.Stop(ctx, req.TaskID)
	switch {
	case err == nil:
		cn.JSON(http.StatusOK, errorResponse{Status: "success", Message: fmt.Sprintf("Scraper %s stopped.", req.TaskID)})
	case errors.Is(err, registry.ErrTaskNotFound):
		writeError(cn, http.StatusNotFound, fmt.Sprintf("Scraper %s is not running.", req.TaskID))
	case errors.Is(err, context.DeadlineExceeded):
		// removed from the registry; the loop exits on its own
		cn.JSON(http.StatusAccepted, errorResponse{Status: "success", Message: fmt.Sprintf("Scraper %s is stopping.", req.TaskID)})
	default:
		writeError(cn, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleRunning(cn *gin.Context) {
	cn.JSON(http.StatusOK, s.reg.List())
}

func writeError(cn *gin.Context, status int, msg string) {
	cn.JSON(status, errorResponse{Status: "error", Message: msg})
}
