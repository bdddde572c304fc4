package domain

import (
	"encoding/json"
	"time"
)

type CacheEntry struct {
	CacheKey  string          `json:"cacheKey"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	ExpiresAt time.Time       `json:"expiresAt"`

	// Transient, never persisted
	IsValidating bool `json:"-"`
}

// NewCacheEntry creates an entry written at now, expiring after maxAge
//
// A negative maxAge is clamped so that ExpiresAt >= Timestamp always holds
func NewCacheEntry(cacheKey string, data json.RawMessage, now time.Time, maxAge time.Duration) CacheEntry {
	if maxAge < 0 {
		maxAge = 0
	}
	return CacheEntry{
		CacheKey:  cacheKey,
		Data:      data,
		Timestamp: now,
		ExpiresAt: now.Add(maxAge),
	}
}

func (e CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func (e CacheEntry) IsStale(now time.Time, staleTime time.Duration) bool {
	return !now.Before(e.Timestamp.Add(staleTime))
}

func (e CacheEntry) WithError(err error) CacheEntry {
	withError := e
	withError.Error = ""
	if err != nil {
		withError.Error = err.Error()
	}
	return withError
}
