// internal/reputation/provider.go
// Package reputation resolves IP geolocation and card BIN reputation for
// the analyzers, with caching and a local fallback in front of the
// external API.
package reputation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"risk-engine/internal/metrics"
	"risk-engine/internal/models"
)

// Provider answers reputation lookups. A nil result with a nil error
// means the provider has no data for the key.
type Provider interface {
	LookupIP(ctx context.Context, ip string) (*models.IPIntel, error)
	LookupBIN(ctx context.Context, bin string) (*models.BINIntel, error)
}

// CachedProvider puts the two-tier cache in front of an upstream provider
// and answers from the fallback when the upstream fails.
type CachedProvider struct {
	upstream Provider
	fallback Provider
	cache    *Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewCachedProvider wires the lookup chain. fallback may be nil.
func NewCachedProvider(upstream, fallback Provider, cache *Cache, m *metrics.Metrics, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		fallback: fallback,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

func (p *CachedProvider) LookupIP(ctx context.Context, ip string) (*models.IPIntel, error) {
	return lookup(ctx, p, "ip", ipKey(ip), func(src Provider) (*models.IPIntel, error) {
		return src.LookupIP(ctx, ip)
	})
}

func (p *CachedProvider) LookupBIN(ctx context.Context, bin string) (*models.BINIntel, error) {
	return lookup(ctx, p, "bin", binKey(bin), func(src Provider) (*models.BINIntel, error) {
		return src.LookupBIN(ctx, bin)
	})
}

func lookup[T any](ctx context.Context, p *CachedProvider, kind, key string, fetch func(Provider) (*T, error)) (*T, error) {
	var cached T
	if source, ok := p.cache.Get(ctx, key, &cached); ok {
		p.record(kind, source)
		return &cached, nil
	}

	value, err := fetch(p.upstream)
	if err == nil {
		p.record(kind, SourceUpstream)
		if value != nil {
			p.cache.Set(ctx, key, value)
		}
		return value, nil
	}

	if p.fallback == nil || ctx.Err() != nil {
		p.record(kind, SourceError)
		return nil, fmt.Errorf("%s lookup failed: %w", kind, err)
	}

	p.logger.Warn("reputation upstream failed, using fallback",
		zap.String("kind", kind),
		zap.String("key", key),
		zap.Error(err))

	value, fbErr := fetch(p.fallback)
	if fbErr != nil {
		p.record(kind, SourceError)
		return nil, fmt.Errorf("%s lookup failed: %w", kind, err)
	}
	p.record(kind, SourceFallback)
	return value, nil
}

func (p *CachedProvider) record(kind, source string) {
	if p.metrics != nil {
		p.metrics.ReputationLookups.WithLabelValues(kind, source).Inc()
	}
}
