package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/openfed/metaregistry/internal/usecase"
)

// AutoRefreshRunner triggers the metadata refresh sweep on a cron schedule.
// At most one sweep runs at a time within the process: an overlapping tick
// observes the guard held and is skipped, never queued. Only the cluster's
// cron-responsible node triggers sweeps at all.
type AutoRefreshRunner struct {
	refresh         *usecase.RefreshUsecase
	features        usecase.Features
	schedule        string
	cronResponsible bool

	cron    *cron.Cron
	running atomic.Bool
}

func NewAutoRefreshRunner(refresh *usecase.RefreshUsecase, features usecase.Features, schedule string, cronResponsible bool) *AutoRefreshRunner {
	return &AutoRefreshRunner{
		refresh:         refresh,
		features:        features,
		schedule:        schedule,
		cronResponsible: cronResponsible,
	}
}

// Start registers the cron entry. Callers must have completed migrations
// before starting the runner.
func (r *AutoRefreshRunner) Start() error {
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, r.Run); err != nil {
		return err
	}
	r.cron.Start()
	slog.Info("Metadata auto refresh scheduled",
		slog.String("schedule", r.schedule),
		slog.Bool("cronResponsible", r.cronResponsible),
		slog.String("module", "scheduler"),
	)
	return nil
}

// Stop halts the cron. A sweep already in flight finishes on its own.
func (r *AutoRefreshRunner) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Run is one scheduled tick. Exported so tests and operators can trigger a
// sweep directly.
func (r *AutoRefreshRunner) Run() {
	if !r.cronResponsible || !r.features.Enabled(usecase.FeatureAutoRefresh) {
		return
	}

	if !r.running.CompareAndSwap(false, true) {
		slog.Warn("Metadata auto refresh is already running", slog.String("module", "scheduler"))
		return
	}
	defer r.running.Store(false)

	// One malfunction must not wedge the guard or future ticks.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Panic during metadata auto refresh",
				slog.Any("panic", rec),
				slog.String("module", "scheduler"),
			)
		}
	}()

	if err := r.refresh.Sweep(context.Background()); err != nil {
		slog.Error("Metadata auto refresh failed",
			slog.String("error", err.Error()),
			slog.String("module", "scheduler"),
		)
	}
}
