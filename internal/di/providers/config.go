// Package providers contains dependency injection providers for the GeoPro server.
package providers

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/geoproapp/geopro-server/internal/config"
	"github.com/geoproapp/geopro-server/internal/logger"
)

// shutdownTimeout bounds each service's graceful shutdown.
const shutdownTimeout = 30 * time.Second

// Args are the command-line arguments configuration is loaded from.
type Args []string

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("Configuration loaded",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Storage.DataPath,
		"policy", cfg.Matching.Policy,
		"workers", cfg.Pipeline.Workers,
	)

	return log, nil
}
