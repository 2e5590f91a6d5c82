package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/detect"
	"github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/takeoff"
)

// statusFor maps error codes onto HTTP statuses
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case "SCOPE_001", "SCOPE_002", "SCOPE_003", "DETECT_003", "IDENT_002":
		return fiber.StatusBadRequest
	case "RUN_001":
		return fiber.StatusNotFound
	case "RUN_003":
		return fiber.StatusConflict
	case "DETECT_001":
		return fiber.StatusServiceUnavailable
	case "PERSIST_001":
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   "0.1.0",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(s.metrics.Prometheus())
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

func (s *Server) handleStartRun(c *fiber.Ctx) error {
	var req struct {
		ProjectID string `json:"projectId"`
	}
	if err := c.BodyParser(&req); err != nil || req.ProjectID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "projectId is required"})
	}

	run, err := s.orchestrator.StartRun(req.ProjectID)
	if err != nil {
		s.logger.Error("Failed to start run", zap.Error(err))
		return s.fail(c, err)
	}
	return c.Status(201).JSON(viewOf(run))
}

func (s *Server) handleGetRun(c *fiber.Ctx) error {
	run, err := s.orchestrator.GetRun(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(viewOf(run))
}

func (s *Server) handleSubmitScope(c *fiber.Ctx) error {
	var req struct {
		Scope       string   `json:"scope"`
		DocumentIDs []string `json:"documentIds"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	pages, err := s.orchestrator.SubmitScope(c.Context(), c.Params("id"), req.Scope, req.DocumentIDs)
	s.metrics.RecordIdentify(err == nil)
	if err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordPagesIdentified(int64(len(pages)))
	return c.JSON(fiber.Map{"pages": pages})
}

func (s *Server) handleBackToScope(c *fiber.Ctx) error {
	if err := s.orchestrator.BackToScope(c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleSetPageSelection(c *fiber.Ctx) error {
	var req struct {
		Pages []struct {
			DocumentID string `json:"documentId"`
			PageNumber int    `json:"pageNumber"`
			Selected   bool   `json:"selected"`
		} `json:"pages"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	runID := c.Params("id")
	for _, p := range req.Pages {
		if err := s.orchestrator.SetPageSelection(runID, p.DocumentID, p.PageNumber, p.Selected); err != nil {
			return s.fail(c, err)
		}
	}
	return c.SendStatus(204)
}

func (s *Server) handleBeginInteractive(c *fiber.Ctx) error {
	if err := s.orchestrator.BeginInteractive(c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordRunStarted(string(takeoff.ModeInteractive))
	return c.SendStatus(204)
}

func (s *Server) handleProcessNext(c *fiber.Ctx) error {
	result, err := s.orchestrator.ProcessNextPage(c.Context(), c.Params("id"))
	if err != nil {
		if code := errors.GetCode(err); code == "RUN_001" || code == "RUN_003" {
			return s.fail(c, err)
		}
		// The page was recorded as rejected and the loop stays open
		s.metrics.RecordDetection(false)
		return c.Status(200).JSON(fiber.Map{
			"rejected": true,
			"error":    err.Error(),
			"code":     errors.GetCode(err),
		})
	}
	s.metrics.RecordDetection(true)
	s.metrics.RecordPageProcessed()
	return c.JSON(result)
}

func (s *Server) handleDecide(c *fiber.Ctx) error {
	var req struct {
		Decision string `json:"decision"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	runID := c.Params("id")
	if err := s.orchestrator.Decide(c.Context(), runID, detect.Decision(req.Decision)); err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordDecision(req.Decision)

	run, err := s.orchestrator.GetRun(runID)
	if err != nil {
		return s.fail(c, err)
	}
	if run.Terminal() {
		s.metrics.RecordRunFinished(false)
	}
	return c.JSON(viewOf(run))
}

func (s *Server) handleCloseRun(c *fiber.Ctx) error {
	runID := c.Params("id")
	if err := s.orchestrator.CloseRun(runID); err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordRunFinished(false)

	run, err := s.orchestrator.GetRun(runID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(viewOf(run))
}

func (s *Server) handleRunBatch(c *fiber.Ctx) error {
	consolidated, aggregated, err := s.orchestrator.RunBatch(c.Context(), c.Params("id"))
	s.metrics.RecordDetection(err == nil)
	if err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordRunStarted(string(takeoff.ModeBatch))
	return c.JSON(fiber.Map{
		"result":     consolidated,
		"aggregated": aggregated,
	})
}

func (s *Server) handleAcceptBatch(c *fiber.Ctx) error {
	summary, err := s.orchestrator.AcceptBatch(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordRunFinished(false)
	return c.JSON(summary)
}

func (s *Server) handleDiscardBatch(c *fiber.Ctx) error {
	if err := s.orchestrator.DiscardBatch(c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordRunFinished(false)
	return c.SendStatus(204)
}

func (s *Server) handleRunAutomated(c *fiber.Ctx) error {
	summary, err := s.orchestrator.RunAutomated(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	s.metrics.RecordRunStarted(string(takeoff.ModeAutomated))
	s.metrics.RecordRunFinished(false)
	return c.JSON(summary)
}

func (s *Server) handleRunProgress(c *fiber.Ctx) error {
	run, err := s.orchestrator.GetRun(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if run.BackendRunID == "" {
		return c.Status(404).JSON(fiber.Map{"error": "run has no automated backend job"})
	}

	p, err := s.detection.Progress(c.Context(), run.BackendRunID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

func (s *Server) handleCancelRun(c *fiber.Ctx) error {
	final, err := s.orchestrator.CancelAutomated(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(final)
}

func (s *Server) handleListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	runs, err := s.store.ListRuns(c.Params("id"), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list runs"})
	}
	return c.JSON(runs)
}

func (s *Server) handleListConditions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	conditions, err := s.store.ListConditions(c.Params("id"), limit, offset)
	if err != nil {
		s.logger.Error("Failed to list conditions", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list conditions"})
	}
	return c.JSON(conditions)
}

func (s *Server) handleListMeasurements(c *fiber.Ctx) error {
	measurements, err := s.store.ListMeasurements(c.Params("id"))
	if err != nil {
		s.logger.Error("Failed to list measurements", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list measurements"})
	}
	return c.JSON(measurements)
}

func (s *Server) handlePageMeasurements(c *fiber.Ctx) error {
	page, err := c.ParamsInt("page")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid page number"})
	}

	measurements, err := s.store.ListMeasurementsByPage(c.Params("id"), page)
	if err != nil {
		s.logger.Error("Failed to list page measurements", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list measurements"})
	}
	return c.JSON(measurements)
}

func (s *Server) handleGetCalibration(c *fiber.Ctx) error {
	page := c.QueryInt("page", 0)

	cal, found, err := s.calibrations.Get(c.Context(), c.Params("projectId"), c.Params("documentId"), page)
	if err != nil {
		s.logger.Error("Failed to look up calibration", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to look up calibration"})
	}
	if !found {
		// Absence is expected for uncalibrated documents
		return c.JSON(fiber.Map{
			"calibrated":   false,
			"defaultScale": s.calibrations.DefaultScale(),
		})
	}
	return c.JSON(fiber.Map{
		"calibrated":  true,
		"calibration": cal,
	})
}
