package main

import (
	"context"
	"os"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/phuslu/log"
	"github.com/rs/zerolog"

	"nuha.dev/fleetmap/internal/auth"
	"nuha.dev/fleetmap/internal/changefeed"
	"nuha.dev/fleetmap/internal/config"
	"nuha.dev/fleetmap/internal/dashboard"
	"nuha.dev/fleetmap/internal/store/impl/factory"
	"nuha.dev/fleetmap/internal/store/impl/logstore"
	"nuha.dev/fleetmap/internal/util"
	"nuha.dev/fleetmap/internal/webapp"
	"nuha.dev/fleetmap/internal/webapp/monitoring"
	"nuha.dev/fleetmap/internal/webapp/webstream"
)

func main() {
	cfg, err := config.Load(".", "/etc/fleetmap")
	if err != nil {
		panic(err.Error())
	}
	log.DefaultLogger.Level = log.ParseLevel(cfg.LogLevel)
	ctx := context.Background()

	st, err := factory.Open(ctx, cfg)
	if err != nil {
		panic(err.Error())
	}
	if cfg.AuditWrites {
		st = logstore.NewStore(st, zerolog.New(os.Stderr).With().Timestamp().Logger())
	}

	hub, err := changefeed.NewHub(cfg.NodeID)
	if err != nil {
		panic(err.Error())
	}
	var nc *nats.Conn
	if cfg.NatsUrl != "" {
		nc, err = nats.Connect(cfg.NatsUrl, nats.Name("fleetmap"))
		if err != nil {
			panic(err.Error())
		}
		defer nc.Drain()
	}

	wg := sync.WaitGroup{}
	if cfg.ChangeSource == "nats" {
		relay := changefeed.NewNatsRelay(nc, hub, cfg.NatsSubject)
		err = relay.Consume(ctx)
		if err != nil {
			panic(err.Error())
		}
	} else {
		if cfg.NatsPublish {
			changefeed.NewNatsRelay(nc, hub, cfg.NatsSubject).Forward()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := hub.Pump(ctx, st)
			log.Error().Err(err).Msg("store watch ended")
		}()
	}

	secret := []byte(cfg.JwtSecret)
	if len(secret) == 0 {
		log.Warn().Msg("jwt_secret not set, tokens will not survive a restart")
		secret = util.GenRandomBytes(32)
	}
	iss := auth.NewIssuer(secret, cfg.SessionLength)

	ws := webstream.NewWebstream(st, hub, iss, webstream.WebStreamConfig{
		ListenAddr: cfg.WsAddress,
		Session: dashboard.Options{
			FocusZoom:   cfg.FocusZoom,
			InitialZoom: cfg.InitialZoom,
			MarkerSalt:  cfg.MarkerSalt,
		},
	})
	go ws.Run()
	wg.Add(1)

	if cfg.MonAddress != "" {
		mon := monitoring.NewMonApi(ws, &monitoring.MonitoringConfig{ListenAddr: cfg.MonAddress})
		go mon.Run()
		wg.Add(1)
	}

	api := webapp.NewApi(st, iss, &webapp.ApiConfig{ListenAddr: cfg.ApiAddress, ProxyProtocol: cfg.ProxyProtocol})
	go api.Run()
	wg.Add(1)

	wg.Wait()
}
