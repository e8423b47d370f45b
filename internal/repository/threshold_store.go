package repository

import (
	"context"
	"errors"
	"fmt"

	"SalesPulse/internal/domain/models"
	domrepo "SalesPulse/internal/domain/repository"
	"SalesPulse/pkg/cache"
)

const thresholdsKey = "detector:thresholds"

// CacheThresholdStore keeps detector thresholds in the shared cache so every
// replica and restart sees the last update.
type CacheThresholdStore struct {
	c cache.Service
}

func NewCacheThresholdStore(c cache.Service) *CacheThresholdStore {
	return &CacheThresholdStore{c: c}
}

func (s *CacheThresholdStore) Load(ctx context.Context) (models.DetectorThresholds, bool, error) {
	var th models.DetectorThresholds
	if err := s.c.Get(ctx, thresholdsKey, &th); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return th, false, nil
		}
		return th, false, fmt.Errorf("load thresholds: %w", err)
	}
	return th, true, nil
}

func (s *CacheThresholdStore) Save(ctx context.Context, th models.DetectorThresholds) error {
	if err := s.c.Set(ctx, thresholdsKey, th, 0); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}
	return nil
}

var _ domrepo.ThresholdStore = (*CacheThresholdStore)(nil)
