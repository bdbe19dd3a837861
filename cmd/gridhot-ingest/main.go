package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gridhot/internal/adapters/manifest"
	"gridhot/internal/adapters/overlap"
	"gridhot/internal/platform/config"
	"gridhot/internal/platform/logger"
	"gridhot/internal/platform/store"

	catalogrepo "gridhot/internal/services/catalog/repo"
	catalogsvc "gridhot/internal/services/catalog/service"
	ingestdom "gridhot/internal/services/ingest/domain"
	ingestsvc "gridhot/internal/services/ingest/service"
	"gridhot/internal/services/ingest/writer"
	"gridhot/internal/services/ledger"
)

func main() {
	_ = godotenv.Load()

	root := config.New()
	pgCfg := root.Prefix("PG_")

	l := logger.Get()

	var (
		fManifest    = flag.String("manifest", "", "path to the JSONL scene manifest")
		fBatchSize   = flag.Int("batch-size", 500, "records pulled per controller batch")
		fInsertBatch = flag.Int("insert-batch", 100, "records per partition commit")
		fRetry       = flag.Bool("retry", false, "process only items previously marked failed in the ledger")
		fCreate      = flag.Bool("create-tables", true, "create partition tables on demand")
		fWorkdir     = flag.String("workdir", ".gridhot", "working directory for the progress ledger")
		fWorkers     = flag.Int("workers", 1, "parallel group workers; 1 = cooperative batch loop")
		fView        = flag.Bool("view", false, "rebuild the unified view after the run")
		fViewName    = flag.String("view-name", "", "unified view name (default bbox_all)")
		fAnalyze     = flag.Bool("analyze", false, "run overlap analysis per touched group after writing")
	)
	flag.Parse()

	if *fManifest == "" {
		l.Fatal().Msg("must provide -manifest")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		AppName: "gridhot-ingest",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Fatal().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	if err := st.Guard(ctx); err != nil {
		l.Fatal().Err(err).Msg("store unreachable")
	}

	led, err := ledger.Open(*fWorkdir)
	if err != nil {
		l.Fatal().Err(err).Msg("ledger open failed")
	}
	defer func() {
		if err := led.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close ledger")
		}
	}()

	binder := catalogrepo.NewPG()
	catalog := catalogsvc.New(st.PG, binder)
	bw := writer.New(st.PG, binder, led, catalog)

	var analyzer ingestdom.Analyzer
	if *fAnalyze {
		a, err := overlap.New(st.PG, root.Prefix("OVERLAP_").MustString("SQL"))
		if err != nil {
			l.Fatal().Err(err).Msg("analyzer configuration invalid")
		}
		analyzer = a
	}

	ctrl := ingestsvc.New(manifest.New(*fManifest), bw, led, catalog, analyzer)

	runCtx := logger.WithRun(ctx, led.RunID(), "")
	stats, err := ctrl.Run(runCtx, ingestdom.RunOptions{
		BatchSize:        *fBatchSize,
		InsertBatchSize:  *fInsertBatch,
		Workers:          *fWorkers,
		RetryFailedOnly:  *fRetry,
		CreatePartitions: *fCreate,
		MaintainView:     *fView,
		ViewName:         *fViewName,
		Analyze:          *fAnalyze,
	})
	if err != nil {
		l.Error().Err(err).Msg("pipeline failed")
		os.Exit(1)
	}

	ls := led.Statistics()
	evt := l.Info().
		Str("state", string(stats.State)).
		Int("total", stats.TotalLoaded).
		Int("processed", stats.Processed).
		Int("inserted", stats.Inserted).
		Int("batches", stats.CompletedBatches).
		Bool("interrupted", stats.Interrupted).
		Int("succeeded", ls.SuccessCount).
		Int("failed", ls.FailedCount)
	for step, n := range ls.FailedByStep {
		evt = evt.Int("failed_"+string(step), n)
	}
	evt.Msg("run summary")

	// an interrupted run that made no progress still counts as a failure exit
	if stats.Interrupted && stats.Processed == 0 {
		os.Exit(1)
	}
}
