package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/geoproapp/geopro-server/internal/config"
	"github.com/geoproapp/geopro-server/internal/di"
	"github.com/geoproapp/geopro-server/internal/di/providers"
	"github.com/geoproapp/geopro-server/internal/export"
	"github.com/geoproapp/geopro-server/internal/logger"
	"github.com/geoproapp/geopro-server/internal/prompt"
	"github.com/geoproapp/geopro-server/internal/service"
)

func runMatch(args []string) error {
	injector := di.NewContainer(args)
	defer shutdown(injector)

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return err
	}
	if len(cfg.Args) != 1 {
		return errors.New("expected exactly one input file")
	}
	input := cfg.Args[0]
	output := outputPath(cfg, input)
	if !cfg.Export.Overwrite {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s: %w (use -overwrite)", output, export.ErrExists)
		}
	}

	sessions, err := do.Invoke[*providers.SessionServiceHandle](injector)
	if err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	view, err := sessions.Import(ctx, name, "", f)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Session %s: %d places\n", view.Session.ID, view.Stats.Total)

	return reviewAndExport(ctx, injector, sessions.SessionService, view.Session.ID, cfg, output)
}

func runResume(args []string) error {
	injector := di.NewContainer(args)
	defer shutdown(injector)

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return err
	}
	if len(cfg.Args) != 1 {
		return errors.New("expected exactly one session ID")
	}
	sessionID := cfg.Args[0]

	sessions, err := do.Invoke[*providers.SessionServiceHandle](injector)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view, err := sessions.Resume(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, resumeSummary(view))

	output := cfg.Export.Output
	if output == "" {
		output = sessionID + ".kml"
	}
	return reviewAndExport(ctx, injector, sessions.SessionService, sessionID, cfg, output)
}

func reviewAndExport(ctx context.Context, injector do.Injector, sessions *service.SessionService, sessionID string, cfg *config.Config, output string) error {
	log := do.MustInvoke[*logger.Logger](injector)

	if err := sessions.Review(ctx, sessionID, prompt.NewTerminal(os.Stdin, os.Stderr)); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "\nInterrupted. Continue with: geopro resume %s\n", sessionID)
			return nil
		}
		return err
	}

	view, err := sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if view.Queued > 0 || view.Stats.Pending > 0 {
		fmt.Fprintf(os.Stderr, "%d places still need review. Continue with: geopro resume %s\n",
			view.Queued+view.Stats.Pending, sessionID)
		return nil
	}

	res, err := sessions.Export(ctx, sessionID, service.ExportOptions{KeepHTML: cfg.Export.KeepHTML})
	if err != nil {
		return err
	}
	if err := export.WriteFile(output, res.Document, cfg.Export.Overwrite); err != nil {
		return err
	}

	for _, m := range res.Misses {
		log.Debug("category miss", "kind", m.Kind, "key", m.Key, "count", m.Count)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d places to %s (%d category misses)\n",
		res.Document.Len(), output, len(res.Misses))
	return nil
}

func resumeSummary(view *service.SessionView) string {
	return fmt.Sprintf("Session %s: %d of %d places resolved",
		view.Session.ID, view.Stats.Resolved(), view.Stats.Total)
}

func outputPath(cfg *config.Config, input string) string {
	if cfg.Export.Output != "" {
		return cfg.Export.Output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".kml"
}

func shutdown(injector *do.RootScope) {
	_ = injector.Shutdown()
}
