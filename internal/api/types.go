package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/calibration"
	"github.com/planlift/takeoff/internal/config"
	"github.com/planlift/takeoff/internal/detect"
	"github.com/planlift/takeoff/internal/identify"
	"github.com/planlift/takeoff/internal/llm"
	"github.com/planlift/takeoff/internal/metrics"
	"github.com/planlift/takeoff/internal/ocr"
	"github.com/planlift/takeoff/internal/store"
	"github.com/planlift/takeoff/internal/takeoff"
)

type Server struct {
	app          *fiber.App
	config       *config.Config
	store        *store.Store
	calibrations *calibration.Store
	detection    *detect.Client
	orchestrator *takeoff.Orchestrator
	reconciler   *takeoff.Reconciler
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func New(cfg *config.Config, st *store.Store, logger *zap.Logger) *Server {
	llmClient := llm.NewClient(cfg.LLM)

	ocrClient := ocr.NewClient(cfg.OCR)
	texts := ocr.NewCache(ocrClient, st.Badger(),
		time.Duration(cfg.OCR.CacheTTL)*time.Hour, logger)

	identifier := identify.NewIdentifier(llmClient, texts, logger)
	detection := detect.NewClient(cfg.Detection, logger)
	m := metrics.Default()
	persister := takeoff.NewStorePersister(st, m, logger)

	calibrations, err := calibration.NewStore(st.DB(), cfg.Takeoff.DefaultScaleFactor, logger)
	if err != nil {
		logger.Fatal("Failed to initialize calibration store", zap.Error(err))
	}

	orchestrator := takeoff.New(identifier, detection, persister, detection, st, cfg.Takeoff, logger)
	reconciler := takeoff.NewReconciler(orchestrator, cfg.Takeoff.ReconcileSchedule, logger)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:          app,
		config:       cfg,
		store:        st,
		calibrations: calibrations,
		detection:    detection,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		metrics:      m,
		logger:       logger,
	}

	s.setupRoutes()
	return s
}

// RunView is the wire shape of a run
type RunView struct {
	ID           string                    `json:"id"`
	ProjectID    string                    `json:"projectId"`
	Scope        string                    `json:"scope,omitempty"`
	State        takeoff.State             `json:"state"`
	Mode         takeoff.Mode              `json:"mode,omitempty"`
	Pages        []identify.IdentifiedPage `json:"pages,omitempty"`
	BackendRunID string                    `json:"backendRunId,omitempty"`
	Summary      detect.RunSummary         `json:"summary"`
	Errors       []string                  `json:"errors,omitempty"`
	StartedAt    time.Time                 `json:"startedAt"`
	EndedAt      *time.Time                `json:"endedAt,omitempty"`
}

func viewOf(run *takeoff.Run) RunView {
	return RunView{
		ID:           run.ID,
		ProjectID:    run.ProjectID,
		Scope:        run.Scope,
		State:        run.State,
		Mode:         run.Mode,
		Pages:        run.Pages,
		BackendRunID: run.BackendRunID,
		Summary:      run.Summary,
		Errors:       run.Errors,
		StartedAt:    run.StartedAt,
		EndedAt:      run.EndedAt,
	}
}
