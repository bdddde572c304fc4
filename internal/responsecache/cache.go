// Package responsecache keeps recently served JSON responses compressed in
// memory, keyed by category so related responses can be dropped together.
package responsecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/klauspost/compress/gzip"

	"github.com/Amund211/deckcache/internal/domain"
)

type Category string

const (
	CategoryCards       Category = "cards"
	CategoryPods        Category = "pods"
	CategoryDecks       Category = "decks"
	CategoryCollections Category = "collections"
	CategoryDefault     Category = "default"
)

func (c Category) TTL() time.Duration {
	switch c {
	case CategoryCards:
		return 24 * time.Hour
	case CategoryCollections:
		return 15 * time.Minute
	default:
		return 5 * time.Minute
	}
}

func CategoryFor(kind domain.ResourceKind) Category {
	switch kind {
	case domain.ResourceCards:
		return CategoryCards
	case domain.ResourcePods:
		return CategoryPods
	case domain.ResourceDecks:
		return CategoryDecks
	case domain.ResourceCollection:
		return CategoryCollections
	default:
		return CategoryDefault
	}
}

// Key namespaces cacheKey under category
func Key(category Category, cacheKey string) string {
	return fmt.Sprintf("%s:%s", category, cacheKey)
}

type entry struct {
	compressed []byte
	etag       string
}

type Cache struct {
	items *ttlcache.Cache[string, entry]
}

func New() *Cache {
	items := ttlcache.New[string, entry](
		ttlcache.WithDisableTouchOnHit[string, entry](),
	)
	go items.Start()
	return &Cache{items: items}
}

// Stop the background removal of expired entries
func (c *Cache) Stop() {
	c.items.Stop()
}

// ETag returns the entity tag for data
func ETag(data json.RawMessage) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf(`"%s"`, hex.EncodeToString(sum[:16]))
}

// Put stores data under key for the category's TTL and returns its ETag
//
// Empty data is not cached.
func (c *Cache) Put(key string, data json.RawMessage, category Category) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		return "", fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return "", fmt.Errorf("failed to compress response: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to compress response: %w", err)
	}

	etag := ETag(data)
	c.items.Set(key, entry{compressed: buf.Bytes(), etag: etag}, category.TTL())

	return etag, nil
}

// Get returns the cached data for key and its ETag
//
// A non-empty requestETag that differs from the stored one is a miss. An
// entry that cannot be decompressed is dropped.
func (c *Cache) Get(key string, requestETag string) (json.RawMessage, string, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, "", false
	}
	cached := item.Value()

	if requestETag != "" && requestETag != cached.etag {
		return nil, "", false
	}

	reader, err := gzip.NewReader(bytes.NewReader(cached.compressed))
	if err != nil {
		c.items.Delete(key)
		return nil, "", false
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil || !json.Valid(data) {
		c.items.Delete(key)
		return nil, "", false
	}

	return data, cached.etag, true
}

func (c *Cache) Invalidate(key string) {
	c.items.Delete(key)
}

// InvalidateCategory drops every entry stored under category
func (c *Cache) InvalidateCategory(category Category) {
	prefix := Key(category, "")
	for _, key := range c.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
		}
	}
}

func (c *Cache) Clear() {
	c.items.DeleteAll()
}

func (c *Cache) Size() int {
	return c.items.Len()
}
