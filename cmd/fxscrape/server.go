package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/fx-rate-scraper/pkg/metrics"
	"github.com/Sternrassler/fx-rate-scraper/pkg/scrape"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500
)

// runStatus is the state reported by /status.
type runStatus struct {
	mu         sync.RWMutex
	runID      string
	state      string
	startedAt  time.Time
	finishedAt time.Time
	summary    scrape.Summary
	err        error
}

func newRunStatus(runID string) *runStatus {
	return &runStatus{
		runID:     runID,
		state:     "running",
		startedAt: time.Now(),
	}
}

func (s *runStatus) finish(summary scrape.Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	s.err = err
	s.finishedAt = time.Now()
	s.state = "succeeded"
	if err != nil {
		s.state = "failed"
	}
}

func (s *runStatus) snapshot() gin.H {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body := gin.H{
		"run_id":     s.runID,
		"state":      s.state,
		"started_at": s.startedAt.Format(time.RFC3339),
	}
	if !s.finishedAt.IsZero() {
		body["finished_at"] = s.finishedAt.Format(time.RFC3339)
		body["currencies"] = s.summary.Currencies
		body["written"] = s.summary.Written
		body["no_data"] = s.summary.NoData
		body["rows"] = s.summary.Rows
	}
	if s.err != nil {
		body["error"] = s.err.Error()
	}
	return body
}

// setupRouter builds the status router. ready may be nil when there is no
// dependency to check.
func setupRouter(status *runStatus, ready func(ctx context.Context) error) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zerologLogger())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	r.GET("/ready", func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "NOT READY: %v", err)
				return
			}
		}
		c.String(http.StatusOK, "READY")
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.snapshot())
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

// zerologLogger is a Gin middleware that logs requests using zerolog.
func zerologLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		evt := log.Debug()
		switch {
		case status >= statusErrorThreshold:
			evt = log.Error()
		case status >= statusWarnThreshold:
			evt = log.Warn()
		}

		evt.
			Int("status", status).
			Str("method", method).
			Str("path", path).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("http request completed")
	}
}
