package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"gridhot/internal/platform/config"
	"gridhot/internal/platform/logger"
	"gridhot/internal/platform/store"

	catalogrepo "gridhot/internal/services/catalog/repo"
	catalogsvc "gridhot/internal/services/catalog/service"
)

func main() {
	_ = godotenv.Load()

	root := config.New()
	pgCfg := root.Prefix("PG_")

	l := logger.Get()

	var (
		fName = flag.String("name", "", "unified view name (default bbox_all)")
		fList = flag.Bool("list", false, "list partitions and exit without touching the view")
		fDrop = flag.String("drop-partition", "", "drop the partition for this group key and exit")
	)
	flag.Parse()

	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		AppName: "gridhot-view",
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

	svc := catalogsvc.New(st.PG, catalogrepo.NewPG())

	switch {
	case *fList:
		parts, err := svc.ListPartitions(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("list partitions failed")
		}
		for _, p := range parts {
			fmt.Println(p)
		}

	case *fDrop != "":
		if err := svc.DropPartitionFor(ctx, *fDrop); err != nil {
			l.Fatal().Err(err).Str("group_key", *fDrop).Msg("drop partition failed")
		}

	default:
		if err := svc.EnsureUnifiedView(ctx, *fName); err != nil {
			l.Error().Err(err).Msg("unified view rebuild failed")
			os.Exit(1)
		}
	}
}
