package vectorizer

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperjump/nearby/internal/models"
)

// DefaultCacheSize bounds the per-user embedding cache.
const DefaultCacheSize = 10000

// Cache holds the most recently used profile embeddings keyed by user ID.
// It is safe for concurrent use; concurrent writers for one user race and the
// last write wins.
type Cache struct {
	lru *lru.Cache[string, *models.ProfileEmbedding]
}

// NewCache creates a cache holding at most capacity users.
func NewCache(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c, err := lru.New[string, *models.ProfileEmbedding](capacity)
	if err != nil {
		return nil, fmt.Errorf("create profile cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns a copy of the cached embedding of userID.
func (c *Cache) Get(userID string) (*models.ProfileEmbedding, bool) {
	e, ok := c.lru.Get(userID)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Put stores a copy of e.
func (c *Cache) Put(e *models.ProfileEmbedding) {
	if e == nil || e.UserID == "" {
		return
	}
	c.lru.Add(e.UserID, e.Clone())
}

// Remove drops userID from the cache.
func (c *Cache) Remove(userID string) {
	c.lru.Remove(userID)
}

// Len returns the number of cached users.
func (c *Cache) Len() int {
	return c.lru.Len()
}
