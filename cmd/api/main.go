package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"pesabridge.io/internal/analytics"
	"pesabridge.io/internal/auth"
	"pesabridge.io/internal/chain"
	"pesabridge.io/internal/config"
	"pesabridge.io/internal/escrow"
	"pesabridge.io/internal/event"
	"pesabridge.io/internal/httpapi"
	"pesabridge.io/internal/obs"
	"pesabridge.io/internal/onetime"
	"pesabridge.io/internal/stream"
	"pesabridge.io/internal/transfer"
	"pesabridge.io/internal/wallet"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Postgres, or in-memory stores for development.
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			obs.Logger().Fatal().Err(err).Msg("open db")
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		obs.Logger().Warn().Msg("no postgres dsn configured; using in-memory stores")
	}

	var credStore auth.CredentialStore
	var transferStore transfer.Store
	var walletStore wallet.Store
	var analyticsSource analytics.Source
	if db != nil {
		credStore = auth.NewPGStore(db)
		transferStore = transfer.NewPGStore(db)
		walletStore = wallet.NewPGStore(db)
		analyticsSource = analytics.NewPGSource(db)
	} else {
		credStore = auth.NewMemoryStore()
		memTransfers := transfer.NewMemoryStore()
		transferStore = memTransfers
		walletStore = wallet.NewMemoryStore()
		analyticsSource = analytics.NewMemorySource(memTransfers)
	}

	// One-time token store: Redis when configured, in-process otherwise.
	var tokenStore onetime.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rs, err := onetime.NewRedisStore(rootCtx, client)
		if err != nil {
			obs.Logger().Fatal().Err(err).Msg("connect redis")
		}
		tokenStore = rs
	} else {
		tokenStore = onetime.NewMemStore()
	}
	tokens, err := onetime.NewService(tokenStore, cfg.EscrowTTL)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init one-time tokens")
	}
	tokens.StartSweeper(rootCtx, cfg.EscrowSweep)

	escrowKey, err := cfg.EscrowKeyBytes()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("escrow key")
	}
	esc, err := escrow.New(tokens, escrowKey)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init escrow")
	}

	// Auth stack.
	codec, err := auth.NewCodec(cfg.AuthSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL))
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init token codec")
	}
	authSvc, err := auth.NewService(credStore, codec, tokens,
		auth.WithLockout(cfg.LockoutLimit, cfg.LockoutWindow, cfg.LockoutPeriod))
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init auth service")
	}
	if err := authSvc.EnsureBuiltins(rootCtx); err != nil {
		obs.Logger().Fatal().Err(err).Msg("ensure builtin permissions")
	}
	authn, err := auth.NewAuthenticator(codec, credStore)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init authenticator")
	}

	// Blockchain providers; an empty gateway URL selects the fake.
	providers := chain.Registry{}
	if cfg.StellarGatewayURL != "" {
		sc, err := chain.NewStellarClient(cfg.StellarGatewayURL)
		if err != nil {
			obs.Logger().Fatal().Err(err).Msg("init stellar client")
		}
		providers[chain.NetworkStellar] = sc
	} else {
		providers[chain.NetworkStellar] = chain.NewFake(chain.NetworkStellar)
	}
	if cfg.HederaGatewayURL != "" {
		hc, err := chain.NewHederaClient(cfg.HederaGatewayURL)
		if err != nil {
			obs.Logger().Fatal().Err(err).Msg("init hedera client")
		}
		providers[chain.NetworkHedera] = hc
	} else {
		providers[chain.NetworkHedera] = chain.NewFake(chain.NetworkHedera)
	}

	wallets, err := wallet.NewService(walletStore, providers, esc)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init wallet service")
	}

	st := stream.New()
	if cfg.DemoStream {
		stopDemo := st.StartDemo(2 * time.Second)
		defer stopDemo()
	}

	transferOpts := []transfer.ServiceOption{transfer.WithStream(st)}
	if len(cfg.KafkaBrokers) > 0 {
		if err := event.PingBrokers(rootCtx, cfg.KafkaBrokers); err != nil {
			obs.Logger().Warn().Err(err).Msg("kafka brokers unreachable at startup")
		}
		producer := event.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		transferOpts = append(transferOpts, transfer.WithEvents(producer))
	}
	transfers, err := transfer.NewService(transferStore, providers, transferOpts...)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init transfer service")
	}

	stats, err := analytics.NewService(analyticsSource)
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("init analytics service")
	}

	api := httpapi.New(httpapi.Deps{
		Auth:       authSvc,
		Authn:      authn,
		Wallets:    wallets,
		Transfers:  transfers,
		Analytics:  stats,
		Stream:     st,
		Ready:      httpapi.ReadyProbe{DB: db},
		Version:    version,
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
		MaxBody:    cfg.MaxBody,
	})

	// No WriteTimeout: /v1/stream holds its connection open.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Logger().Info().Str("addr", cfg.Addr).Str("version", version).Msg("starting pesabridge-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger().Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Logger().Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	rootCancel()
	if db != nil {
		_ = db.Close()
	}
	obs.Logger().Info().Msg("stopped")
}
