// Package ocr fetches per-page extracted text from the external OCR engine.
// The engine itself is out of scope; this package only speaks its HTTP
// contract and caches responses per document.
package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/planlift/takeoff/internal/config"
)

// TextProvider yields the extracted text for every page of a document,
// keyed by page number. Pages the engine produced no text for are absent.
type TextProvider interface {
	DocumentText(ctx context.Context, documentID string) (map[int]string, error)
}

// Client talks to the OCR service over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an OCR service client
func NewClient(cfg config.OCRConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

type documentTextResponse struct {
	DocumentID string `json:"document_id"`
	Pages      []struct {
		PageNumber int    `json:"page_number"`
		Text       string `json:"text"`
	} `json:"pages"`
}

// DocumentText fetches extracted text for all pages of a document
func (c *Client) DocumentText(ctx context.Context, documentID string) (map[int]string, error) {
	url := fmt.Sprintf("%s/documents/%s/text", c.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OCR service error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed documentTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}

	texts := make(map[int]string, len(parsed.Pages))
	for _, page := range parsed.Pages {
		if page.Text == "" {
			continue
		}
		texts[page.PageNumber] = page.Text
	}
	return texts, nil
}
