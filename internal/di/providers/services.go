package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/geoproapp/geopro-server/internal/config"
	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/logger"
	"github.com/geoproapp/geopro-server/internal/match"
	"github.com/geoproapp/geopro-server/internal/metrics"
	"github.com/geoproapp/geopro-server/internal/service"
	"github.com/geoproapp/geopro-server/internal/validation"
)

// SessionServiceHandle wraps the session service so running pipelines
// stop before the store closes.
type SessionServiceHandle struct {
	*service.SessionService
}

// Shutdown implements do.Shutdownable.
func (h *SessionServiceHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.SessionService.Shutdown(ctx)
}

// ProvideSessionService provides the matching session service.
func ProvideSessionService(i do.Injector) (*SessionServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	retriever := do.MustInvoke[*RetrieverHandle](i)
	scorer := do.MustInvoke[*match.Scorer](i)
	mapperHandle := do.MustInvoke[*CategoryMapperHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	policy, err := domain.ParsePolicy(cfg.Matching.Policy, cfg.Matching.Threshold)
	if err != nil {
		return nil, err
	}

	svc := service.NewSessionService(
		storeHandle.Store,
		retriever.Retriever,
		scorer,
		mapperHandle.Mapper,
		validator,
		sseHandle.Manager,
		m,
		service.SessionDefaults{
			Policy:     policy,
			TopK:       cfg.Matching.ReviewTopK,
			Workers:    cfg.Pipeline.Workers,
			Radius:     cfg.Matching.Radius,
			MaxResults: cfg.Matching.MaxResults,
		},
		log.Logger,
	)

	if err := m.RegisterSessions(svc); err != nil {
		log.Warn("Failed to register session metrics", "error", err)
	}

	return &SessionServiceHandle{SessionService: svc}, nil
}
