package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"gridhot/internal/platform/config"
	"gridhot/internal/platform/logger"
	"gridhot/internal/platform/store"

	hotspotdom "gridhot/internal/services/hotspot/domain"
	hotspotrepo "gridhot/internal/services/hotspot/repo"
	hotspotsvc "gridhot/internal/services/hotspot/service"
)

func main() {
	_ = godotenv.Load()

	root := config.New()
	pgCfg := root.Prefix("PG_")

	l := logger.Get()

	var (
		fOut     = flag.String("out", "", "output table name (required)")
		fTopN    = flag.Int("top-n", 0, "extract the first N ranks per group")
		fTopPct  = flag.Float64("top-percent", 0, "extract the top X percent of ranks per group")
		fInspect = flag.Bool("inspect", false, "dry run: report candidate groups and expected rows, write nothing")
	)
	flag.Parse()

	cfg, err := hotspotdom.NewConfig(*fOut, *fTopN, *fTopPct)
	if err != nil {
		// configuration errors fail before any database access
		l.Fatal().Err(err).Msg("invalid selection policy")
	}

	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		AppName: "gridhot-extract",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 2)),
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

	svc := hotspotsvc.New(st.PG, hotspotrepo.NewPG())

	if *fInspect {
		insp, err := svc.Inspect(ctx, cfg)
		if err != nil {
			l.Fatal().Err(err).Msg("inspect failed")
		}
		l.Info().
			Strs("candidate_groups", insp.CandidateGroups).
			Int("expected_rows", insp.ExpectedRows).
			Msg("inspection")
		return
	}

	res, err := svc.Run(ctx, cfg)
	if err != nil {
		l.Error().Err(err).Msg("extraction failed")
		os.Exit(1)
	}
	l.Info().
		Strs("successful_groups", res.SuccessfulGroups).
		Strs("failed_groups", res.FailedGroups).
		Int("extracted_rows", res.ExtractedRows).
		Msg("extraction summary")

	if len(res.SuccessfulGroups) == 0 && len(res.FailedGroups) > 0 {
		os.Exit(1)
	}
}
