package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/config"
	apperrors "github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/progress"
)

// Backend is the detection service surface the processors consume
type Backend interface {
	DetectPage(ctx context.Context, documentID string, pageNumber int, scope string, pageType string) (*TakeoffResult, error)
	DetectBatch(ctx context.Context, pages []PageRef, scope string, aggregate bool) (*BatchResponse, error)
	StartAutomatedRun(ctx context.Context, scope string, documentIDs []string, pageNumbers []int) (*AutomatedRunResponse, error)
}

// Client talks to the vision detection backend over HTTP. Detection calls go
// through a circuit breaker: once the backend has failed repeatedly the
// breaker opens and calls fail fast as DETECT_001 until the cooldown passes.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

// NewClient creates a detection backend client
func NewClient(cfg config.DetectionConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 3
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30
	}

	settings := gobreaker.Settings{
		Name:    "detection-backend",
		Timeout: time.Duration(cooldown) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("detection breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger,
	}
}

// DetectPage runs detection on a single page
func (c *Client) DetectPage(ctx context.Context, documentID string, pageNumber int, scope string, pageType string) (*TakeoffResult, error) {
	payload := map[string]interface{}{
		"documentId": documentID,
		"pageNumber": pageNumber,
		"scope":      scope,
	}
	if pageType != "" {
		payload["pageType"] = pageType
	}

	body, err := c.post(ctx, "/detect/page", payload, true)
	if err != nil {
		return nil, err
	}

	var result TakeoffResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.Wrap(err, "DETECT_002", "failed to decode detection result")
	}
	return &result, nil
}

// DetectBatch runs detection on all pages in one request
func (c *Client) DetectBatch(ctx context.Context, pages []PageRef, scope string, aggregate bool) (*BatchResponse, error) {
	payload := map[string]interface{}{
		"pages":            pages,
		"scope":            scope,
		"aggregateResults": aggregate,
	}

	body, err := c.post(ctx, "/detect/batch", payload, true)
	if err != nil {
		return nil, err
	}

	var result BatchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.Wrap(err, "DETECT_002", "failed to decode batch result")
	}
	return &result, nil
}

// StartAutomatedRun asks the backend to run detection, persistence, and
// measurement placement server-side
func (c *Client) StartAutomatedRun(ctx context.Context, scope string, documentIDs []string, pageNumbers []int) (*AutomatedRunResponse, error) {
	payload := map[string]interface{}{
		"scope":               scope,
		"documentIds":         documentIDs,
		"selectedPageNumbers": pageNumbers,
		"enableAutomation":    true,
	}

	body, err := c.post(ctx, "/runs/start", payload, false)
	if err != nil {
		return nil, err
	}

	var result AutomatedRunResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.Wrap(err, "DETECT_002", "failed to decode run response")
	}
	return &result, nil
}

// Progress fetches the live state of an automated run
func (c *Client) Progress(ctx context.Context, runID string) (*progress.Progress, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/runs/"+runID+"/progress", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("progress poll failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("progress poll error (status %d): %s", resp.StatusCode, string(body))
	}

	var p progress.Progress
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &p, nil
}

// Cancel signals the backend to stop an automated run. Best-effort: a failed
// acknowledgement is returned but the caller is expected to stop regardless.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/runs/"+runID+"/cancel", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("cancel not acknowledged (status %d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, breakered bool) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	do := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	}

	if !breakered {
		return do()
	}

	respBody, err := c.breaker.Execute(do)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperrors.Wrap(err, apperrors.ErrDetectionUnavailable.Code, apperrors.ErrDetectionUnavailable.Message)
		}
		return nil, err
	}
	return respBody, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

var _ Backend = (*Client)(nil)
