// Package progress tracks long-running automated takeoff runs by polling the
// backend on a fixed cadence. The tracker owns its own lifetime: it is
// started and stopped explicitly and never tied to a rendering surface.
package progress

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/planlift/takeoff/internal/errors"
)

// Status is an automated run's lifecycle state
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Progress is the live state of an automated run
type Progress struct {
	Active             bool     `json:"active"`
	Status             Status   `json:"status"`
	Progress           float64  `json:"progress"` // 0..100
	CurrentStep        string   `json:"currentStep,omitempty"`
	TotalPages         int      `json:"totalPages"`
	ProcessedPages     int      `json:"processedPages"`
	ConditionsCreated  int      `json:"conditionsCreated"`
	MeasurementsPlaced int      `json:"measurementsPlaced"`
	Errors             []string `json:"errors,omitempty"`
	DurationSeconds    *float64 `json:"duration,omitempty"`
}

// Terminal reports whether the run has finished, successfully or not
func (p *Progress) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusError
}

// Poller is the backend surface the tracker polls
type Poller interface {
	Progress(ctx context.Context, runID string) (*Progress, error)
	Cancel(ctx context.Context, runID string) error
}

// Tracker polls a run until it reaches a terminal state
type Tracker struct {
	poller      Poller
	limiter     *rate.Limiter
	maxAttempts int
	logger      *zap.Logger
}

// NewTracker creates a tracker polling at the given interval, giving up after
// maxAttempts polls without a terminal state
func NewTracker(poller Poller, interval time.Duration, maxAttempts int, logger *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 300
	}
	return &Tracker{
		poller:      poller,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Watch polls until the run reaches a terminal state, invoking onUpdate with
// each observation. A single failed poll is logged and retried, never fatal.
// When the attempt budget runs out the last observed progress is returned
// alongside RUN_002 so partial counts survive the timeout.
func (t *Tracker) Watch(ctx context.Context, runID string, onUpdate func(Progress)) (*Progress, error) {
	var last *Progress

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return last, err
		}

		p, err := t.poller.Progress(ctx, runID)
		if err != nil {
			t.logger.Warn("progress poll failed",
				zap.String("run_id", runID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		last = p
		if onUpdate != nil {
			onUpdate(*p)
		}

		if p.Terminal() {
			t.logger.Info("run reached terminal state",
				zap.String("run_id", runID),
				zap.String("status", string(p.Status)))
			return p, nil
		}
	}

	return last, errors.ErrProgressTimeout
}

// CancelAndDrain signals cancellation and keeps polling briefly to observe
// the terminal state. The tracker stops after graceAttempts regardless of
// whether the backend acknowledged; cancellation is best-effort, not
// guaranteed instantaneous.
func (t *Tracker) CancelAndDrain(ctx context.Context, runID string, graceAttempts int) (*Progress, error) {
	if err := t.poller.Cancel(ctx, runID); err != nil {
		t.logger.Warn("cancel not acknowledged",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	if graceAttempts <= 0 {
		graceAttempts = 5
	}

	var last *Progress
	for attempt := 0; attempt < graceAttempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return last, err
		}

		p, err := t.poller.Progress(ctx, runID)
		if err != nil {
			continue
		}
		last = p
		if p.Terminal() {
			return p, nil
		}
	}

	return last, nil
}
