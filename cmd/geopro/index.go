package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/geoproapp/geopro-server/internal/config"
	"github.com/geoproapp/geopro-server/internal/di"
	"github.com/geoproapp/geopro-server/internal/di/providers"
)

func runIndex(args []string) error {
	if len(args) == 0 || args[0] != "build" {
		return errors.New(`expected "index build <extract.json>"`)
	}

	injector := di.NewContainer(args[1:])
	defer shutdown(injector)

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return err
	}
	if len(cfg.Args) != 1 {
		return errors.New("expected exactly one Overpass JSON extract")
	}

	idx, err := do.Invoke[*providers.IndexHandle](injector)
	if err != nil {
		return err
	}

	f, err := os.Open(cfg.Args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := idx.Build(ctx, f)
	if err != nil {
		return err
	}
	total, err := idx.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Indexed %d features into %s (%d total)\n", n, cfg.Index.Path, total)
	return nil
}
