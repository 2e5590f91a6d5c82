package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const cachePrefix = "ocrtext:"

// Cache decorates a TextProvider with a BadgerDB-backed per-document cache.
// Extracted text only changes when a document is re-uploaded, so entries
// live until their TTL expires.
type Cache struct {
	inner  TextProvider
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache wraps a provider with a badger-backed cache
func NewCache(inner TextProvider, db *badger.DB, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		inner:  inner,
		db:     db,
		ttl:    ttl,
		logger: logger,
	}
}

// DocumentText serves from the cache when possible, fetching and storing on a
// miss. A cache write failure is logged, not surfaced; the fetched text is
// still returned.
func (c *Cache) DocumentText(ctx context.Context, documentID string) (map[int]string, error) {
	if texts, ok := c.get(documentID); ok {
		return texts, nil
	}

	texts, err := c.inner.DocumentText(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := c.set(documentID, texts); err != nil {
		c.logger.Warn("failed to cache document text",
			zap.String("document_id", documentID),
			zap.Error(err))
	}
	return texts, nil
}

// Invalidate drops a document's cached text, used when it is re-uploaded
func (c *Cache) Invalidate(documentID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(cachePrefix + documentID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (c *Cache) get(documentID string) (map[int]string, bool) {
	var texts map[int]string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cachePrefix + documentID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &texts)
		})
	})
	if err != nil {
		return nil, false
	}
	return texts, true
}

func (c *Cache) set(documentID string, texts map[int]string) error {
	data, err := json.Marshal(texts)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(cachePrefix+documentID), data).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}
