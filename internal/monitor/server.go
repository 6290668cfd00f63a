// Package monitor exposes the link's HTTP surface: health probes,
// prometheus metrics, send-session snapshots, and the caller-driven
// retransmit endpoint.
package monitor

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/wavectl/internal/observability"
	"github.com/danmuck/wavectl/internal/sender"
)

type Server struct {
	Name string
	Addr string

	sender   *sender.Sender
	router   *gin.Engine
	appeared time.Time
	log      zerolog.Logger
}

func New(name, addr string, corsOrigins []string, snd *sender.Sender, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		Name:     name,
		Addr:     addr,
		sender:   snd,
		router:   r,
		appeared: time.Now(),
		log:      logger.With().Str("component", "monitor").Logger(),
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// ResendRequest names the symbols to replay for one session.
type ResendRequest struct {
	Chunks []int    `json:"chunks"`
	Parity []string `json:"parity"`
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": s.Name,
			"version":   "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"uptime":    time.Since(s.appeared).String(),
			"component": s.Name,
			"version":   "0.0.1",
		})
	})

	s.router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": s.sender.Store().List(),
		})
	})

	s.router.DELETE("/sessions", func(c *gin.Context) {
		s.sender.Store().ClearAll()
		c.JSON(http.StatusOK, gin.H{"cleared": true})
	})

	s.router.DELETE("/sessions/:sid", func(c *gin.Context) {
		sid := c.Param("sid")
		if err := s.sender.Store().Delete(sid); err != nil {
			if errors.Is(err, sender.ErrUnknownSession) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": sid})
	})

	s.router.POST("/sessions/:sid/resend", func(c *gin.Context) {
		sid := c.Param("sid")
		var req ResendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resend request"})
			return
		}
		if len(req.Chunks) == 0 && len(req.Parity) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to resend"})
			return
		}

		if len(req.Chunks) > 0 {
			if err := s.sender.ResendChunks(c.Request.Context(), sid, req.Chunks); err != nil {
				respondResendError(c, err)
				return
			}
		}
		if len(req.Parity) > 0 {
			if err := s.sender.ResendParity(c.Request.Context(), sid, req.Parity); err != nil {
				respondResendError(c, err)
				return
			}
		}
		s.log.Info().Str("sid", sid).
			Int("chunks", len(req.Chunks)).
			Int("parity", len(req.Parity)).
			Msg("resend_requested")
		c.JSON(http.StatusOK, gin.H{
			"sid":    sid,
			"chunks": len(req.Chunks),
			"parity": len(req.Parity),
		})
	})
}

func respondResendError(c *gin.Context, err error) {
	if errors.Is(err, sender.ErrUnknownSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

// Run blocks serving the monitor API on Addr.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.Addr).Msg("monitor_listen")
	return s.router.Run(s.Addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
