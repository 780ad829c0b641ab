package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/matching"
)

// handleRescore starts a background rescore of all open opportunities, or of
// one when opportunity_id is given. Only one job runs at a time.
func (s *Server) handleRescore(c echo.Context) error {
	var oppID *uuid.UUID
	if raw := strings.TrimSpace(c.QueryParam("opportunity_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid opportunity_id"})
		}
		oppID = &id
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A rescore job is already running",
			"job_id": job.ID,
		})
	}

	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), s.jobTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()

		var stats matching.RescoreStats
		var err error
		if oppID != nil {
			stats, err = s.Matches.RescoreOpportunity(jobCtx, *oppID)
		} else {
			stats, err = s.Matches.RescoreAll(jobCtx)
		}

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		job.Result = stats
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			s.Logger.Error("rescore job failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		job.Status = "completed"
		s.Logger.Info("rescore job completed",
			zap.String("job_id", jobID),
			zap.Int("updated", stats.Updated),
			zap.Int("conflicts", stats.Conflicts),
		)
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message":  "Rescore job started",
		"job_id":   jobID,
		"poll_url": "/api/v1/admin/job/" + jobID,
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}
