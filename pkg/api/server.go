// Package api exposes the read-only operational surface: health, store
// stats, and queue stats.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/database"
	"github.com/agendawatch/agendawatch/pkg/queue"
	"github.com/agendawatch/agendawatch/pkg/store"
	"github.com/agendawatch/agendawatch/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	cfg   *config.HTTPConfig
	db    *database.Client
	store *store.Store
	queue *queue.Queue
	pool  *queue.WorkerPool

	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(cfg *config.HTTPConfig, db *database.Client, st *store.Store, q *queue.Queue, pool *queue.WorkerPool) *Server {
	return &Server{
		cfg:   cfg,
		db:    db,
		store: st,
		queue: q,
		pool:  pool,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.GET("/health", s.healthHandler)
	v1.GET("/stats", s.statsHandler)
	v1.GET("/queue", s.queueHandler)
	return r
}

// Start runs the HTTP server until ListenAndServe returns.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Router(),
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports database reachability, worker pool state, and
// the cross-contamination check over stored granicus packet URLs.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	checks := gin.H{}

	if err := s.db.Ping(ctx); err != nil {
		status = "unhealthy"
		checks["database"] = gin.H{"status": "unhealthy", "message": err.Error()}
	} else {
		checks["database"] = gin.H{"status": "healthy"}
	}

	if s.pool != nil {
		poolHealth := s.pool.Health(ctx)
		checks["worker_pool"] = poolHealth
		if !poolHealth.IsHealthy && status == "healthy" {
			status = "degraded"
		}
	}

	stats, err := s.store.HealthStats(ctx)
	if err != nil {
		if status == "healthy" {
			status = "degraded"
		}
		checks["store"] = gin.H{"status": "degraded", "message": err.Error()}
	} else {
		checks["store"] = stats
		if len(stats.ContaminatedPackets) > 0 && status == "healthy" {
			status = "degraded"
		}
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "version": version.Full(), "checks": checks})
}

// statsHandler returns store-level entity counts.
func (s *Server) statsHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.store.HealthStats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// queueHandler returns per-status queue counts.
func (s *Server) queueHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": stats})
}
