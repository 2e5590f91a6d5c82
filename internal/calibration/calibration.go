// Package calibration resolves the pixel-to-real-world scale for a document
// page. Entries are written by the calibration workflow elsewhere; this core
// only reads them. Absence is a normal state for uncalibrated documents.
package calibration

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/planlift/takeoff/internal/geometry"
)

// Calibration is the scale factor for a document, optionally narrowed to a
// single page. The viewport is the one captured when the user calibrated, so
// measured values stay stable across zoom and pan.
type Calibration struct {
	ID          string            `gorm:"primaryKey" json:"id"`
	ProjectID   string            `gorm:"index:idx_calib_doc" json:"project_id"`
	DocumentID  string            `gorm:"index:idx_calib_doc" json:"document_id"`
	PageNumber  *int              `json:"page_number,omitempty"`
	ScaleFactor float64           `json:"scale_factor"`
	ScaleText   string            `json:"scale_text,omitempty"`
	Viewport    geometry.Viewport `gorm:"embedded;embeddedPrefix:viewport_" json:"viewport"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Store looks up calibrations with page-over-document precedence.
type Store struct {
	db           *gorm.DB
	defaultScale float64
	logger       *zap.Logger
}

// NewStore creates a calibration store
func NewStore(db *gorm.DB, defaultScale float64, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Calibration{}); err != nil {
		return nil, err
	}
	return &Store{
		db:           db,
		defaultScale: defaultScale,
		logger:       logger,
	}, nil
}

// Get returns the calibration for a page: a page-specific entry wins over the
// document-level one. The second return is false when neither exists.
func (s *Store) Get(ctx context.Context, projectID, documentID string, pageNumber int) (Calibration, bool, error) {
	var entries []Calibration
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND document_id = ?", projectID, documentID).
		Find(&entries).Error
	if err != nil {
		return Calibration{}, false, err
	}

	var docLevel *Calibration
	for i := range entries {
		c := &entries[i]
		if c.PageNumber != nil && *c.PageNumber == pageNumber {
			return *c, true, nil
		}
		if c.PageNumber == nil {
			docLevel = c
		}
	}
	if docLevel != nil {
		return *docLevel, true, nil
	}
	return Calibration{}, false, nil
}

// Resolve returns the calibration for a page, falling back to the default
// scale and the caller's viewport when the document was never calibrated.
func (s *Store) Resolve(ctx context.Context, projectID, documentID string, pageNumber int, fallback geometry.Viewport) (Calibration, error) {
	c, ok, err := s.Get(ctx, projectID, documentID, pageNumber)
	if err != nil {
		return Calibration{}, err
	}
	if ok {
		return c, nil
	}

	s.logger.Debug("document not calibrated, using default scale",
		zap.String("document_id", documentID),
		zap.Int("page", pageNumber),
		zap.Float64("scale", s.defaultScale))

	return Calibration{
		ProjectID:   projectID,
		DocumentID:  documentID,
		ScaleFactor: s.defaultScale,
		Viewport:    fallback,
	}, nil
}

// DefaultScale returns the configured fallback scale factor
func (s *Store) DefaultScale() float64 {
	return s.defaultScale
}
