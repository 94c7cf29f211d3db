package providers

import (
	"github.com/samber/do/v2"

	"github.com/geoproapp/geopro-server/internal/cache"
	"github.com/geoproapp/geopro-server/internal/config"
	"github.com/geoproapp/geopro-server/internal/localindex"
	"github.com/geoproapp/geopro-server/internal/logger"
	"github.com/geoproapp/geopro-server/internal/metrics"
	"github.com/geoproapp/geopro-server/internal/overpass"
	"github.com/geoproapp/geopro-server/internal/pipeline"
)

// ProvideMetrics provides the Prometheus metrics registry.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

// CacheHandle wraps the response cache with shutdown capability.
type CacheHandle struct {
	cache.Cache
}

// Shutdown implements do.Shutdownable.
func (h *CacheHandle) Shutdown() error {
	return h.Close()
}

// ProvideCache provides the Overpass response cache.
func ProvideCache(i do.Injector) (*CacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	c, err := cache.New(cfg.Cache.Backend, cfg.CacheDir(), cfg.Cache.TTL, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Debug("Response cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)

	return &CacheHandle{Cache: c}, nil
}

// IndexHandle wraps the offline candidate index with shutdown capability.
type IndexHandle struct {
	*localindex.Index
}

// Shutdown implements do.Shutdownable.
func (h *IndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideIndex provides the offline candidate index.
func ProvideIndex(i do.Injector) (*IndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	idx, err := localindex.Open(localindex.Options{Path: cfg.Index.Path, Logger: log.Logger})
	if err != nil {
		return nil, err
	}

	return &IndexHandle{Index: idx}, nil
}

// RetrieverHandle wraps the configured candidate retriever.
type RetrieverHandle struct {
	pipeline.Retriever
	client *overpass.Client
}

// Shutdown implements do.Shutdownable.
func (h *RetrieverHandle) Shutdown() error {
	if h.client != nil {
		h.client.Close()
	}
	return nil
}

// ProvideRetriever provides the candidate retriever: the offline index when
// enabled, otherwise the rate-limited Overpass client.
func ProvideRetriever(i do.Injector) (*RetrieverHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Index.Enabled {
		idx := do.MustInvoke[*IndexHandle](i)
		n, err := idx.Count()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			log.Warn("Offline index is empty, every record will fall back to its original place",
				"path", cfg.Index.Path)
		}
		log.Info("Using offline candidate index", "path", cfg.Index.Path, "features", n)
		return &RetrieverHandle{Retriever: idx.Index}, nil
	}

	cacheHandle := do.MustInvoke[*CacheHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	client := overpass.New(overpass.Options{
		Endpoints:    cfg.Overpass.Endpoints,
		QueryTimeout: cfg.Overpass.QueryTimeout,
		HTTPTimeout:  cfg.Overpass.HTTPTimeout,
		MaxRetries:   cfg.Overpass.MaxRetries,
		RPS:          cfg.Overpass.RPS,
		Burst:        cfg.Overpass.Burst,
		UserAgent:    cfg.Overpass.UserAgent,
		Cache:        cacheHandle.Cache,
		Observer:     m,
	}, log.Logger)

	log.Info("Using Overpass", "endpoints", len(cfg.Overpass.Endpoints), "rps", cfg.Overpass.RPS)

	return &RetrieverHandle{Retriever: client, client: client}, nil
}
