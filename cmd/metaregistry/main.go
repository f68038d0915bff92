package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/openfed/metaregistry/internal/config"
	"github.com/openfed/metaregistry/internal/infra/database"
	"github.com/openfed/metaregistry/internal/infra/importer"
	"github.com/openfed/metaregistry/internal/infra/repository"
	"github.com/openfed/metaregistry/internal/infra/schema"
	"github.com/openfed/metaregistry/internal/migration"
	"github.com/openfed/metaregistry/internal/observability"
	"github.com/openfed/metaregistry/internal/present/rest"
	"github.com/openfed/metaregistry/internal/service"
	"github.com/openfed/metaregistry/internal/usecase"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	if conf.Server.EnableTrace {
		shutdown, err := observability.SetupTracer(ctx, "metaregistry", conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("Failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		panic("failed to connect database")
	}

	store := repository.NewDocumentStore(db)
	catalog := schema.NewCatalog(conf.Server.SchemaDir)

	// Migrations run to completion before anything else touches the store.
	ledger := migration.NewStoreLedger(store)
	if err := ledger.EnsureCollection(ctx); err != nil {
		slog.Error("Failed to create migration ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	changelog := migration.NewChangelog(store, catalog)
	if err := migration.NewRunner(ledger).Apply(ctx, changelog.ChangeSets()); err != nil {
		slog.Error("Migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	changeRequests := repository.NewChangeRequestRepository(store)
	metaData := usecase.NewMetaDataService(store, changeRequests)
	importerClient := importer.NewClient(conf.Server.ImportEndpoint)
	refresh := usecase.NewRefreshUsecase(metaData, importerClient, catalog)

	features := service.NewFeatureService(conf.Features)
	runner := service.NewAutoRefreshRunner(refresh, features, conf.Cron.Schedule, conf.Cron.NodeCronJobResponsible)
	if err := runner.Start(); err != nil {
		slog.Error("Failed to schedule auto refresh", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer runner.Stop()

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("metaregistry"))

	rest.NewHandler(db, version).Register(e)

	e.Logger.Fatal(e.Start(conf.Server.ListenAddr))
}
