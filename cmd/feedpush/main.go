package main

import (
	"context"
	"flag"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/fleetmap/internal/config"
	"nuha.dev/fleetmap/internal/feed"
	"nuha.dev/fleetmap/internal/store/impl/factory"
)

func main() {
	gtfs_url := flag.String("gtfsrt_url", "", "GTFS-RT vehicle positions URL (protobuf)")
	interval := flag.Duration("interval", 15*time.Second, "poll interval")
	config_dir := flag.String("config", ".", "directory holding fleetmap.yaml")
	flag.Parse()
	if *gtfs_url == "" {
		log.Fatal().Msg("gtfsrt_url is required")
	}
	cfg, err := config.Load(*config_dir)
	if err != nil {
		panic(err.Error())
	}
	log.DefaultLogger.Level = log.ParseLevel(cfg.LogLevel)
	if cfg.DbDriver == "memory" {
		log.Fatal().Msg("feedpush needs a shared store, set db_driver to postgres or sqlite")
	}
	if !factory.CrossProcess(cfg.DbDriver) {
		log.Warn().Str("db_driver", cfg.DbDriver).Msg("running dashboards will only see feed positions after reload")
	}
	ctx := context.Background()
	st, err := factory.Open(ctx, cfg)
	if err != nil {
		panic(err.Error())
	}
	src := feed.NewGtfsSource(*gtfs_url, 10*time.Second)
	err = feed.NewPusher(st).Poll(ctx, src, *interval)
	log.Error().Err(err).Msg("poller stopped")
}
