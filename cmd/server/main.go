package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/extraction"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/persistence"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/storage"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/presentation/controllers"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/services"
	"github.com/reclaim-hq/reclaim/pkg/composables"
	"github.com/reclaim-hq/reclaim/pkg/configuration"
	"github.com/reclaim-hq/reclaim/pkg/eventbus"
	"github.com/reclaim-hq/reclaim/pkg/metrics"
	"github.com/reclaim-hq/reclaim/pkg/middleware"
	"github.com/reclaim-hq/reclaim/pkg/scheduler"
)

// devTenantID scopes all requests that carry no X-Tenant-ID header.
var devTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	var (
		runRepo    importrun.Repository
		itemRepo   importitem.Repository
		duplicates services.DuplicateFinder
		pool       *pgxpool.Pool
	)
	switch conf.Repos {
	case "inmem":
		items := persistence.NewInmemImportItemRepository()
		runs := persistence.NewInmemImportRunRepository(items)
		runRepo = runs
		itemRepo = items
		duplicates = persistence.NewInmemDuplicateFinder(runs)
		logger.Warn("using in-memory repositories; data is lost on restart")
	default:
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		var err error
		pool, err = pgxpool.New(ctx, conf.Database.Opts)
		if err != nil {
			panic(err)
		}
		defer pool.Close()
		runRepo = persistence.NewPgImportRunRepository()
		itemRepo = persistence.NewPgImportItemRepository()
		duplicates = persistence.NewPgDuplicateFinder()
	}

	documents, err := storage.NewFSDocumentStorage(conf.UploadsPath)
	if err != nil {
		panic(err)
	}

	var provider extraction.Provider
	switch conf.Extraction.Provider {
	case "stub":
		provider = extraction.NewStubProvider()
	default:
		provider = extraction.NewOpenAIProvider(extraction.OpenAIProviderConfig{
			APIKey: conf.OpenAIKey,
			Model:  conf.Extraction.Model,
		})
	}

	bus := eventbus.NewEventPublisher(logger)
	sched := scheduler.New()

	runService := services.NewRunService(runRepo, documents, bus, conf.MaxUploadSize, logger)
	itemStore := services.NewItemStoreService(itemRepo, conf.PageSize)
	reviewService := services.NewReviewService(runRepo, itemStore, bus, sched, logger)
	finalizeService := services.NewFinalizeService(runRepo, itemStore, reviewService, bus, logger)

	worker := services.NewExtractionWorker(
		runRepo,
		itemRepo,
		documents,
		provider,
		duplicates,
		conf.Extraction.ConfidenceThreshold,
		conf.Extraction.RequestTimeout,
		logger,
	)
	if pool != nil {
		worker.SetBaseContext(composables.WithPool(context.Background(), pool))
	}
	worker.Register(bus)

	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(logger))
	if pool != nil {
		router.Use(middleware.ProvidePool(pool))
	}
	router.Use(middleware.ProvideTenantID(devTenantID))

	controllers.NewBulkImportAPIController(
		runService,
		itemStore,
		itemRepo,
		finalizeService,
		conf.PageSize,
	).Register(router)
	if conf.Prometheus.Enabled {
		metrics.NewPrometheusController(conf.Prometheus.Path).Register(router)
	}

	server := &http.Server{
		Addr:         conf.SocketAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", conf.SocketAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	configuration.Use().Unload()
}
