// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/clustercockpit/telemetry-enrichment/internal/api"
	"github.com/clustercockpit/telemetry-enrichment/internal/auth"
	"github.com/clustercockpit/telemetry-enrichment/internal/config"
	"github.com/clustercockpit/telemetry-enrichment/internal/decode"
	"github.com/clustercockpit/telemetry-enrichment/internal/ingest"
	"github.com/clustercockpit/telemetry-enrichment/internal/ipintel"
	"github.com/clustercockpit/telemetry-enrichment/internal/metrics"
	"github.com/clustercockpit/telemetry-enrichment/internal/runtimeEnv"
	"github.com/clustercockpit/telemetry-enrichment/internal/store"
	"github.com/clustercockpit/telemetry-enrichment/internal/taskManager"
	"github.com/clustercockpit/telemetry-enrichment/internal/tsrecon"
	"github.com/clustercockpit/telemetry-enrichment/internal/weather"
	"github.com/clustercockpit/telemetry-enrichment/pkg/log"
	"github.com/clustercockpit/telemetry-enrichment/pkg/nats"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	cliInit()

	if flagInit {
		initEnv()
		return
	}

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	config.Init(flagConfigFile)

	if err := nats.Init(config.Keys.Nats); err != nil {
		log.Fatalf("nats config: %s", err.Error())
	}
	nats.Connect()

	conn := store.Connect(config.Keys.DBDriver, config.Keys.DB)

	// The shared Redis server is split by logical DB index per concern,
	// so a slow/blocking command in one never head-of-line-blocks another.
	redisOpts := func(db int) *redis.Options {
		return &redis.Options{Addr: config.Keys.Redis.Address, Password: config.Keys.Redis.Password, DB: db}
	}
	positionRdb := redis.NewClient(redisOpts(config.Keys.Redis.DBPosition))
	metricsRdb := redis.NewClient(redisOpts(config.Keys.Redis.DBMetrics))
	ipIntelRdb := redis.NewClient(redisOpts(config.Keys.Redis.DBIPIntel))
	weatherCacheRdb := redis.NewClient(redisOpts(config.Keys.Redis.DBWeatherCache))

	vendor := decode.NewVendorLookup(nil)

	recon := tsrecon.New(positionRdb)

	diskCache := weather.NewDiskCache(config.Keys.Weather.CacheDir, config.Keys.Weather.CacheMaxFiles, config.Keys.Weather.CacheMaxSizeMB)
	providers := weather.NewProviders(weather.ProvidersConfig{
		PrimaryURL:      config.Keys.Weather.PrimaryURL,
		MarineURL:       config.Keys.Weather.MarineURL,
		FallbackURL:     config.Keys.Weather.FallbackURL,
		PrimaryTimeout:  parseDurationOr(config.Keys.Weather.PrimaryTimeout, 5*time.Second),
		MarineTimeout:   parseDurationOr(config.Keys.Weather.MarineTimeout, 5*time.Second),
		FallbackTimeout: parseDurationOr(config.Keys.Weather.FallbackTimeout, 4*time.Second),
	})
	quota := weather.NewQuota(weatherCacheRdb, config.Keys.Weather.DailyQuota)
	positions := weather.NewPositionCache(positionRdb)
	coordinator := weather.NewCoordinator(positions, quota, diskCache, providers)

	ipLookup := ipintel.New(ipIntelRdb, config.Keys.IPIntel.URL,
		parseDurationOr(config.Keys.IPIntel.Timeout, 3*time.Second),
		parseDurationOr(config.Keys.IPIntel.CacheTTL, 24*time.Hour))

	worker := ingest.New(conn, recon, coordinator, ipLookup, vendor, metricsRdb)

	var serviceAuth *auth.ServiceAuth
	if !config.Keys.DisableAuthentication {
		var err error
		secretEnv := ""
		if config.Keys.JwtConfig != nil {
			secretEnv = config.Keys.JwtConfig.SigningSecretEnv
		}
		serviceAuth, err = auth.Init(os.Getenv(secretEnv))
		if err != nil {
			log.Fatalf("auth init: %s", err.Error())
		}
	}

	metricsProvider := metrics.New()

	restapi := &api.RestApi{
		Conn:           conn,
		Nats:           nats.GetClient(),
		NatsSubject:    nats.Keys.Subject,
		Auth:           serviceAuth,
		DisableAuth:    config.Keys.DisableAuthentication,
		DBPath:         config.Keys.DB,
		MaxDBSizeBytes: config.Keys.Trimmer.MaxSizeBytes,
		StartedAt:      time.Now(),
	}

	var wg sync.WaitGroup

	if !flagNoServer {
		serverInit(restapi, metricsProvider)
		wg.Add(1)
		go func() {
			defer wg.Done()
			serverStart()
		}()
	}

	var cancelConsumer func()
	if !flagNoConsumer {
		cancelConsumer = startConsumer(&wg, worker)
	}

	if err := taskManager.Start(conn, metricsRdb, metricsProvider, config.Keys.DB, config.Keys); err != nil {
		log.Fatalf("starting background jobs: %s", err.Error())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	runtimeEnv.SystemdNotifiy(true, "running")

	<-sigs
	runtimeEnv.SystemdNotifiy(false, "shutting down")

	if !flagNoServer {
		serverShutdown()
	}
	if cancelConsumer != nil {
		cancelConsumer()
	}
	if err := taskManager.Shutdown(); err != nil {
		log.Warnf("background jobs shutdown: %s", err.Error())
	}
	if client := nats.GetClient(); client != nil {
		client.Close()
	}

	wg.Wait()
	log.Print("Graceful shutdown completed!")
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warnf("invalid duration %q, using %s", raw, fallback)
		return fallback
	}
	return d
}
