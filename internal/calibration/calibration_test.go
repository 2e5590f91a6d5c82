package calibration

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/planlift/takeoff/internal/geometry"
)

func setupTestStore(t *testing.T) *Store {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{})
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	store, err := NewStore(db, 1.0/12.0, logger)
	require.NoError(t, err)

	return store
}

func intPtr(n int) *int { return &n }

func TestStore_PagePrecedence(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docLevel := Calibration{
		ID: "c1", ProjectID: "p1", DocumentID: "d1",
		ScaleFactor: 0.1,
		Viewport:    geometry.Viewport{Width: 1000, Height: 1000},
	}
	pageLevel := Calibration{
		ID: "c2", ProjectID: "p1", DocumentID: "d1",
		PageNumber:  intPtr(3),
		ScaleFactor: 0.25,
		Viewport:    geometry.Viewport{Width: 800, Height: 600},
	}
	require.NoError(t, store.db.Create(&docLevel).Error)
	require.NoError(t, store.db.Create(&pageLevel).Error)

	// Page 3 resolves to the page-specific entry
	c, ok, err := store.Get(ctx, "p1", "d1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.25, c.ScaleFactor, 1e-9)

	// Other pages fall back to the document-level entry
	c, ok, err = store.Get(ctx, "p1", "d1", 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.1, c.ScaleFactor, 1e-9)
}

func TestStore_AbsenceIsNotAnError(t *testing.T) {
	store := setupTestStore(t)

	_, ok, err := store.Get(context.Background(), "p1", "never-calibrated", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ResolveDefault(t *testing.T) {
	store := setupTestStore(t)
	fallback := geometry.Viewport{Width: 1200, Height: 900}

	c, err := store.Resolve(context.Background(), "p1", "d1", 1, fallback)
	require.NoError(t, err)

	assert.InDelta(t, 1.0/12.0, c.ScaleFactor, 1e-9)
	assert.Equal(t, fallback, c.Viewport)
}

func TestStore_ResolvePrefersStored(t *testing.T) {
	store := setupTestStore(t)

	stored := Calibration{
		ID: "c1", ProjectID: "p1", DocumentID: "d1",
		ScaleFactor: 0.5,
		Viewport:    geometry.Viewport{Width: 1000, Height: 1000},
	}
	require.NoError(t, store.db.Create(&stored).Error)

	c, err := store.Resolve(context.Background(), "p1", "d1", 1, geometry.Viewport{Width: 50, Height: 50})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, c.ScaleFactor, 1e-9)
	assert.Equal(t, stored.Viewport, c.Viewport)
}
