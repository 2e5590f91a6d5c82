// Package identify asks a language model which drawing pages are relevant to
// a takeoff scope, based on per-page text extracted by the OCR service.
package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/errors"
	"github.com/planlift/takeoff/internal/ocr"
)

const (
	minScopeLen = 5
	maxScopeLen = 500

	// Pages are long; the model only needs enough text to classify them.
	maxPageChars = 2000
)

const systemPrompt = `You are a construction takeoff assistant. Given a takeoff scope and the extracted text of drawing pages, identify which pages are relevant to quantifying that scope.

Respond with ONLY a bare JSON array, no prose, no markdown fences. Each element must have these fields:
{"documentId": string, "pageNumber": number, "confidence": number 0-1, "reason": string, "pageType": "floor-plan"|"finish-schedule"|"detail-drawing"|"elevation"|"other", "indicators": [string], "relevanceScore": number 0-1}

Only include pages that are plausibly relevant. An empty array is a valid answer.`

// Chatter is the language model surface the identifier needs
type Chatter interface {
	SimpleChat(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Identifier ranks document pages against a free-text scope
type Identifier struct {
	llm    Chatter
	texts  ocr.TextProvider
	logger *zap.Logger
}

// NewIdentifier creates a page relevance identifier. The text provider is the
// injected per-document OCR cache.
func NewIdentifier(llm Chatter, texts ocr.TextProvider, logger *zap.Logger) *Identifier {
	return &Identifier{
		llm:    llm,
		texts:  texts,
		logger: logger,
	}
}

// ValidateScope enforces the scope contract: non-empty, trimmed length 5-500
func ValidateScope(scope string) error {
	trimmed := strings.TrimSpace(scope)
	if trimmed == "" {
		return errors.ErrScopeEmpty
	}
	if len(trimmed) < minScopeLen {
		return errors.ErrScopeTooShort
	}
	if len(trimmed) > maxScopeLen {
		return errors.ErrScopeTooLong
	}
	return nil
}

// IdentifyPages fetches each document's extracted text and asks the model to
// rank pages. Documents the OCR service has no text for are skipped, not
// errored.
func (i *Identifier) IdentifyPages(ctx context.Context, scope string, documentIDs []string) ([]IdentifiedPage, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}

	documentTexts := make(map[string]map[int]string, len(documentIDs))
	for _, docID := range documentIDs {
		texts, err := i.texts.DocumentText(ctx, docID)
		if err != nil {
			i.logger.Warn("skipping document without extracted text",
				zap.String("document_id", docID),
				zap.Error(err))
			continue
		}
		if len(texts) > 0 {
			documentTexts[docID] = texts
		}
	}

	return i.Identify(ctx, scope, documentTexts)
}

// Identify runs the classification against already-fetched page texts
func (i *Identifier) Identify(ctx context.Context, scope string, documentTexts map[string]map[int]string) ([]IdentifiedPage, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}
	if len(documentTexts) == 0 {
		return []IdentifiedPage{}, nil
	}

	prompt := buildPrompt(scope, documentTexts)

	response, err := i.llm.SimpleChat(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrModelUnavailable.Code, errors.ErrModelUnavailable.Message)
	}

	pages := parsePages(response)
	i.logger.Info("page identification complete",
		zap.Int("documents", len(documentTexts)),
		zap.Int("pages_identified", len(pages)))

	return pages, nil
}

// buildPrompt combines the scope with every page's extracted text. Pages with
// no text never reach the model. Documents and pages are emitted in a stable
// order so identical inputs produce identical prompts.
func buildPrompt(scope string, documentTexts map[string]map[int]string) string {
	var sb strings.Builder
	sb.WriteString("Takeoff scope: ")
	sb.WriteString(strings.TrimSpace(scope))
	sb.WriteString("\n\n")

	docIDs := make([]string, 0, len(documentTexts))
	for docID := range documentTexts {
		docIDs = append(docIDs, docID)
	}
	sort.Strings(docIDs)

	for _, docID := range docIDs {
		texts := documentTexts[docID]
		pageNumbers := make([]int, 0, len(texts))
		for page, text := range texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			pageNumbers = append(pageNumbers, page)
		}
		sort.Ints(pageNumbers)

		for _, page := range pageNumbers {
			text := texts[page]
			if len(text) > maxPageChars {
				text = text[:maxPageChars]
			}
			sb.WriteString(fmt.Sprintf("=== Document %s, page %d ===\n%s\n\n", docID, page, text))
		}
	}

	return sb.String()
}

// parsePages scans the model's text for the first well-formed JSON array and
// decodes it. No array found means zero relevant pages, never an error.
func parsePages(response string) []IdentifiedPage {
	raw, ok := firstJSONArray(response)
	if !ok {
		return []IdentifiedPage{}
	}

	var pages []IdentifiedPage
	if err := json.Unmarshal(raw, &pages); err != nil {
		return []IdentifiedPage{}
	}

	// Duplicate (document, page) entries: last wins by array order.
	seen := make(map[string]int)
	deduped := pages[:0]
	for _, p := range pages {
		if p.Confidence < 0 {
			p.Confidence = 0
		}
		if p.Confidence > 1 {
			p.Confidence = 1
		}
		if p.PageType == "" {
			p.PageType = PageTypeOther
		}
		p.Selected = true

		key := fmt.Sprintf("%s:%d", p.DocumentID, p.PageNumber)
		if idx, dup := seen[key]; dup {
			deduped[idx] = p
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, p)
	}
	return deduped
}

// firstJSONArray returns the first balanced, valid JSON array in s. Bracket
// depth is tracked outside string literals so prose containing '[' does not
// fool the scan.
func firstJSONArray(s string) (json.RawMessage, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '[' {
			continue
		}

		depth := 0
		inString := false
		escaped := false
		for end := start; end < len(s); end++ {
			c := s[end]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					candidate := []byte(s[start : end+1])
					if json.Valid(candidate) {
						return candidate, true
					}
					// Balanced but invalid: resume after this opener.
					end = len(s)
				}
			}
		}
	}
	return nil, false
}
