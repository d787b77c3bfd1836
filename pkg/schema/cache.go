package schema

import (
	"fmt"
	"time"
)

// CacheEntry is a completed consultation stored for reuse. Created on
// the first consultation for a fingerprint, served until expiry,
// evicted on expiration or capacity pressure.
type CacheEntry struct {
	Key            Fingerprint       `json:"key"`
	SpecialistID   string            `json:"specialist_id"`
	Recommendation Recommendation    `json:"recommendation"`
	Quality        QualityAssessment `json:"quality"`
	Outcome        Outcome           `json:"outcome"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

func (e *CacheEntry) Validate() error {
	if !e.Key.Valid() {
		return fmt.Errorf("cache entry key invalid")
	}
	if e.SpecialistID == "" {
		return fmt.Errorf("cache entry specialist_id required")
	}
	if err := e.Recommendation.Validate(); err != nil {
		return fmt.Errorf("cache entry recommendation: %w", err)
	}
	if e.ExpiresAt.IsZero() {
		return fmt.Errorf("cache entry expiry required")
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		return fmt.Errorf("cache entry expires before creation")
	}
	return nil
}

// Expired reports whether the entry is past its TTL at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
