package takeoff

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planlift/takeoff/internal/detect"
	"github.com/planlift/takeoff/internal/metrics"
	"github.com/planlift/takeoff/internal/store"
)

// defaultConditionColor is used when the backend proposes no color
const defaultConditionColor = "#4A90D9"

// StorePersister writes accepted detection proposals to the store as
// condition and measurement rows.
type StorePersister struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewStorePersister(st *store.Store, m *metrics.Metrics, logger *zap.Logger) *StorePersister {
	return &StorePersister{store: st, metrics: m, logger: logger}
}

var _ detect.Persister = (*StorePersister)(nil)

// PersistResult writes one accepted result. Conditions are created first so
// measurements can reference them by the proposal's condition index; a
// measurement pointing at a missing index is dropped with a warning rather
// than failing the whole accept.
func (p *StorePersister) PersistResult(ctx context.Context, projectID string, r *detect.TakeoffResult) (int, int, error) {
	conditionIDs := make([]string, len(r.Conditions))
	created := 0
	for i, pc := range r.Conditions {
		color := pc.Color
		if color == "" {
			color = defaultConditionColor
		}
		cond := &store.Condition{
			ID:           uuid.New().String(),
			ProjectID:    projectID,
			Name:         pc.Name,
			Type:         pc.Type,
			Unit:         pc.Unit,
			WasteFactor:  pc.WasteFactor,
			Color:        color,
			LaborCost:    pc.LaborCost,
			MaterialCost: pc.MaterialCost,
			Source:       "ai",
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if err := p.store.CreateCondition(cond); err != nil {
			return created, 0, err
		}
		conditionIDs[i] = cond.ID
		created++
	}

	placed := 0
	for _, pm := range r.Measurements {
		if pm.ConditionIndex < 0 || pm.ConditionIndex >= len(conditionIDs) {
			p.logger.Warn("measurement references unknown condition index",
				zap.String("document_id", r.DocumentID),
				zap.Int("page_number", pm.PageNumber),
				zap.Int("condition_index", pm.ConditionIndex))
			continue
		}

		points, err := json.Marshal(pm.Points)
		if err != nil {
			return created, placed, err
		}
		pageNumber := pm.PageNumber
		if pageNumber == 0 {
			pageNumber = r.PageNumber
		}
		m := &store.Measurement{
			ID:              uuid.New().String(),
			ProjectID:       projectID,
			ConditionID:     conditionIDs[pm.ConditionIndex],
			DocumentID:      r.DocumentID,
			PageNumber:      pageNumber,
			Type:            pm.Type,
			Points:          points,
			CalculatedValue: pm.CalculatedValue,
			PerimeterValue:  pm.PerimeterValue,
			Unit:            pm.Unit,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		}
		if err := p.store.CreateMeasurement(m); err != nil {
			return created, placed, err
		}
		placed++
	}

	if p.metrics != nil {
		p.metrics.RecordPersisted(int64(created), int64(placed))
	}
	return created, placed, nil
}
