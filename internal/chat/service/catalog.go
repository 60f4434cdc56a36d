package service

import (
	"context"

	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/cache"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"go.uber.org/zap"
)

const catalogCacheKey = "active_titles"

// Catalog caches the active product titles fed to the classifier prompt.
type Catalog struct {
	commerce port.CommerceClient
	cache    *cache.InMemory[[]string]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewCatalog wraps commerce with a TTL cache.
func NewCatalog(commerce port.CommerceClient, c *cache.InMemory[[]string], metrics *observability.Metrics, logger *zap.Logger) *Catalog {
	return &Catalog{commerce: commerce, cache: c, metrics: metrics, logger: logger}
}

// Titles returns the cached titles, or nil when the store cannot be reached.
func (c *Catalog) Titles(ctx context.Context) []string {
	titles, hit, err := c.cache.GetOrLoad(ctx, catalogCacheKey, c.commerce.ListActiveProductTitles)
	if hit {
		c.metrics.IncrCacheHit("catalog")
	} else {
		c.metrics.IncrCacheMiss("catalog")
	}
	if err != nil {
		c.logger.Warn("catalog titles unavailable", zap.Error(err))
		return nil
	}
	return titles
}
