// Package status serves health and counters over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
)

const shutdownTimeout = 5 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatsReader interface {
	Snapshot(ctx context.Context) (*model.Statistics, error)
}

type Server struct {
	addr   string
	engine *gin.Engine
	logger *zap.Logger
}

func New(addr string, db Pinger, stats StatsReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/stats", func(c *gin.Context) {
		snapshot, err := stats.Snapshot(c.Request.Context())
		if err != nil {
			logger.Error("reading statistics", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "statistics unavailable"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})

	return &Server{addr: addr, engine: engine, logger: logger}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
