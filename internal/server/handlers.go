package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

type HealthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	EventsCount   int    `json:"events_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// handleHealth counts events in the store, so it also reports whether the
// store is reachable.
func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:        "ok",
		TestsCount:    s.app.Catalog.Len(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	events, err := s.app.Store.ListEvents(c.Request.Context(), "")
	if err != nil {
		s.logger.Error("health check failed to read store", zap.Error(err))
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp.EventsCount = len(events)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tests": s.app.Catalog.Tests()})
}

type AssignRequest struct {
	TestID    string `json:"test_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	SessionID string `json:"session_id"`
}

type AssignResponse struct {
	TestID    string `json:"test_id"`
	VariantID string `json:"variant_id"`
}

// handleAssign never fails for a well-formed request: unknown tests are
// served control.
func (s *Server) handleAssign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	variant := s.app.Assigner.AssignSession(c.Request.Context(), req.TestID, req.UserID, req.SessionID)
	c.JSON(http.StatusOK, AssignResponse{TestID: req.TestID, VariantID: variant})
}

// BeaconRequest is a conversion or engagement sent by the page, usually
// through navigator.sendBeacon.
type BeaconRequest struct {
	TestID    string         `json:"t" binding:"required"`
	UserID    string         `json:"u" binding:"required"`
	SessionID string         `json:"s"`
	EventType string         `json:"e" binding:"required,oneof=conversion engagement"`
	Value     *float64       `json:"v"`
	Metadata  map[string]any `json:"m"`
}

func (s *Server) handleBeacon(c *gin.Context) {
	var req BeaconRequest
	// sendBeacon posts text/plain, so bind JSON regardless of content type
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	if _, ok := s.app.Catalog.Get(req.TestID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "test not found"})
		return
	}

	ctx := c.Request.Context()
	var e experiment.Event
	switch experiment.EventType(req.EventType) {
	case experiment.EventConversion:
		e = s.app.Tracker.TrackConversion(ctx, req.TestID, req.UserID, req.SessionID, req.Value, req.Metadata)
	case experiment.EventEngagement:
		e = s.app.Tracker.TrackEngagement(ctx, req.TestID, req.UserID, req.SessionID, req.Value, req.Metadata)
	}

	s.logger.Debug("beacon received",
		zap.String("event_id", e.ID),
		zap.String("test_id", e.TestID),
		zap.String("variant_id", e.VariantID),
	)
	c.Status(http.StatusNoContent)
}

type ResultsResponse struct {
	TestID  string                     `json:"test_id"`
	Name    string                     `json:"name"`
	Results []experiment.ResultSummary `json:"results"`
}

func (s *Server) handleResults(c *gin.Context) {
	testID := c.Param("test")
	test, ok := s.app.Catalog.Get(testID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "test not found"})
		return
	}

	summaries, err := s.app.Aggregator.SummarizeContext(c.Request.Context(), test.ID)
	if err != nil {
		s.logger.Error("failed to summarize results", zap.String("test_id", test.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load results"})
		return
	}

	c.JSON(http.StatusOK, ResultsResponse{
		TestID:  test.ID,
		Name:    test.Name,
		Results: summaries,
	})
}
