package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/geoproapp/geopro-server/internal/category"
	"github.com/geoproapp/geopro-server/internal/config"
	"github.com/geoproapp/geopro-server/internal/logger"
	"github.com/geoproapp/geopro-server/internal/match"
	"github.com/geoproapp/geopro-server/internal/sse"
	"github.com/geoproapp/geopro-server/internal/validation"
)

// CategoryMapperHandle wraps the category mapper and its table watcher.
type CategoryMapperHandle struct {
	*category.Mapper
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *CategoryMapperHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideCategoryMapper loads the category table and, when configured,
// reloads it as the source files change. Reloads are announced over SSE.
func ProvideCategoryMapper(i do.Injector) (*CategoryMapperHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	src := category.Sources{
		RulesPath: cfg.Category.RulesPath,
		IconsPath: cfg.Category.IconsPath,
		HintsPath: cfg.Category.HintsPath,
	}
	table, err := category.Load(src)
	if err != nil {
		return nil, err
	}

	mapper := category.NewMapper(table, log.Logger)
	mapper.SetOnSwap(func(t *category.Table) {
		sseHandle.Emit(sse.NewCategoriesEvent(t.Version(), t.RuleCount()))
	})

	log.Info("Category table loaded", "version", table.Version(), "rules", table.RuleCount())

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Category.Watch && len(src.Paths()) > 0 {
		go func() {
			if err := category.Watch(ctx, mapper, src, log.Logger); err != nil {
				log.Warn("Category table watcher unavailable", "error", err)
			}
		}()
	}

	return &CategoryMapperHandle{Mapper: mapper, cancel: cancel}, nil
}

// ProvideScorer provides the match scorer built from the matching config.
func ProvideScorer(i do.Injector) (*match.Scorer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	mapperHandle := do.MustInvoke[*CategoryMapperHandle](i)

	opts := match.Options{
		Weights: match.Weights{
			Name:     cfg.Matching.WeightName,
			Spatial:  cfg.Matching.WeightSpatial,
			Category: cfg.Matching.WeightCategory,
		},
		DistanceCutoff:  cfg.Matching.DistanceCutoff,
		NeutralCategory: cfg.Matching.NeutralCategory,
	}
	return match.NewScorer(opts, mapperHandle.Mapper), nil
}

// ProvideValidator provides the record and input validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}
