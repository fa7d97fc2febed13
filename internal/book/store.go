package book

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablepress/backend/internal/artifact"
	"github.com/fablepress/backend/shared/redisclient"
)

// manifestCacheTTL bounds staleness after a template redeploy.
const manifestCacheTTL = 10 * time.Minute

// ManifestStore loads book manifests by slug.
type ManifestStore interface {
	Load(ctx context.Context, slug string) (*Manifest, error)
}

// CachedManifestStore reads manifests from the artifact store through a
// Redis cache. Manifests only change on template deploys, so the cache
// carries nearly all reads.
type CachedManifestStore struct {
	artifacts artifact.Store
	cache     *redisclient.Client
	logger    *slog.Logger
}

// NewCachedManifestStore creates a manifest store. cache may be nil, in
// which case every load hits the artifact store.
func NewCachedManifestStore(artifacts artifact.Store, cache *redisclient.Client, logger *slog.Logger) *CachedManifestStore {
	return &CachedManifestStore{
		artifacts: artifacts,
		cache:     cache,
		logger:    logger,
	}
}

func manifestCacheKey(slug string) string {
	return fmt.Sprintf("manifest:%s", slug)
}

// Load returns the validated manifest for slug.
func (s *CachedManifestStore) Load(ctx context.Context, slug string) (*Manifest, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, manifestCacheKey(slug))
		if err == nil {
			return ParseManifest(slug, data)
		}
		if !redisclient.IsNotFound(err) {
			s.logger.Warn("Manifest cache read failed, falling through",
				slog.String("slug", slug),
				slog.Any("error", err),
			)
		}
	}

	data, err := s.artifacts.Get(ctx, artifact.ManifestKey(slug))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", slug, err)
	}

	m, err := ParseManifest(slug, data)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, manifestCacheKey(slug), data, manifestCacheTTL); err != nil {
			s.logger.Warn("Manifest cache write failed",
				slog.String("slug", slug),
				slog.Any("error", err),
			)
		}
	}

	return m, nil
}
