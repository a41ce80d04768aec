package domain

import "time"

// CacheEntry is a cached response body with its validity window.
type CacheEntry struct {
	Value     []byte    `json:"value"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the entry may be served at now.
func (e CacheEntry) ValidAt(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
