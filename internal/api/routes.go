package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Server.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)
	s.app.Get("/api/metrics", s.handleMetricsJSON)

	api := s.app.Group("/api")

	api.Post("/runs", s.handleStartRun)
	api.Get("/runs/:id", s.handleGetRun)
	api.Post("/runs/:id/scope", s.handleSubmitScope)
	api.Post("/runs/:id/back", s.handleBackToScope)
	api.Put("/runs/:id/pages", s.handleSetPageSelection)
	api.Post("/runs/:id/interactive", s.handleBeginInteractive)
	api.Post("/runs/:id/next", s.handleProcessNext)
	api.Post("/runs/:id/decision", s.handleDecide)
	api.Post("/runs/:id/close", s.handleCloseRun)
	api.Post("/runs/:id/batch", s.handleRunBatch)
	api.Post("/runs/:id/batch/accept", s.handleAcceptBatch)
	api.Post("/runs/:id/batch/discard", s.handleDiscardBatch)
	api.Post("/runs/:id/automated", s.handleRunAutomated)
	api.Get("/runs/:id/progress", s.handleRunProgress)
	api.Post("/runs/:id/cancel", s.handleCancelRun)

	api.Post("/measurements", s.handleCreateMeasurement)
	api.Post("/measurements/:id/cutouts", s.handleApplyCutouts)

	api.Get("/projects/:id/runs", s.handleListRuns)
	api.Get("/projects/:id/conditions", s.handleListConditions)
	api.Get("/conditions/:id/measurements", s.handleListMeasurements)
	api.Get("/documents/:id/pages/:page/measurements", s.handlePageMeasurements)
	api.Get("/projects/:projectId/documents/:documentId/calibration", s.handleGetCalibration)
}

func (s *Server) Start() error {
	if err := s.reconciler.Start(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	s.reconciler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
