// Package di provides dependency injection configuration for the GeoPro server.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/geoproapp/geopro-server/internal/config"
	"github.com/geoproapp/geopro-server/internal/di/providers"
	"github.com/geoproapp/geopro-server/internal/logger"
	"github.com/geoproapp/geopro-server/internal/match"
	"github.com/geoproapp/geopro-server/internal/metrics"
	"github.com/geoproapp/geopro-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments the configuration is loaded from.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, providers.Args(args))
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Persistence
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideCache)
	do.Provide(injector, providers.ProvideIndex)

	// Matching
	do.Provide(injector, providers.ProvideRetriever)
	do.Provide(injector, providers.ProvideCategoryMapper)
	do.Provide(injector, providers.ProvideScorer)
	do.Provide(injector, providers.ProvideValidator)

	// Business services
	do.Provide(injector, providers.ProvideSessionService)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes the server's services, resumes interrupted sessions
// and starts listening.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.RetrieverHandle](injector)
	_ = do.MustInvoke[*providers.CategoryMapperHandle](injector)
	_ = do.MustInvoke[*match.Scorer](injector)
	_ = do.MustInvoke[*validation.Validator](injector)

	// Business services
	sessions := do.MustInvoke[*providers.SessionServiceHandle](injector)

	n, err := sessions.ResumeAll(context.Background())
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info("Resumed interrupted sessions", "count", n)
	}

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	return nil
}
