// Package api serves the collected readings over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ZamarianPatrick/lazypig-collector/collector"
	"github.com/ZamarianPatrick/lazypig-collector/datalog"
)

const (
	defaultLimit = 48
	maxLimit     = 1000
)

type PlantLister interface {
	Plants() []collector.PlantStatus
}

type EntryStore interface {
	Latest(plantID string) (*datalog.Entry, error)
	List(plantID string, limit int) ([]datalog.Entry, error)
	Since(plantID string, t time.Time) ([]datalog.Entry, error)
}

type Server struct {
	plants  PlantLister
	entries EntryStore
	engine  *gin.Engine
}

func NewServer(plants PlantLister, entries EntryStore) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		plants:  plants,
		entries: entries,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), logMiddleware)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/api/v1")
	v1.GET("/plants", s.listPlants)
	v1.GET("/plants/:id/readings", s.listReadings)
	v1.GET("/plants/:id/latest", s.latestReading)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func logMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()
	logrus.WithFields(logrus.Fields{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}).Debug("http request")
}

func (s *Server) knownPlant(id string) bool {
	for _, p := range s.plants.Plants() {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Server) listPlants(c *gin.Context) {
	c.JSON(http.StatusOK, s.plants.Plants())
}

func (s *Server) listReadings(c *gin.Context) {
	id := c.Param("id")
	if !s.knownPlant(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown plant " + id})
		return
	}

	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		entries, err := s.entries.Since(id, t)
		if err != nil {
			logrus.WithError(err).Error("failed to query readings")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query readings"})
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	limit := defaultLimit
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	entries, err := s.entries.List(id, limit)
	if err != nil {
		logrus.WithError(err).Error("failed to query readings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query readings"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) latestReading(c *gin.Context) {
	id := c.Param("id")
	if !s.knownPlant(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown plant " + id})
		return
	}

	e, err := s.entries.Latest(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings yet"})
			return
		}
		logrus.WithError(err).Error("failed to query latest reading")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query readings"})
		return
	}
	c.JSON(http.StatusOK, e)
}
