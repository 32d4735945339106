package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuelpay/internal/checkout"
	"fuelpay/internal/config"
	httpx "fuelpay/internal/http"
	"fuelpay/internal/provider/base"
	"fuelpay/internal/provider/daraja"
	"fuelpay/internal/realtime"
	"fuelpay/internal/store/postgres"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger DB
	pool := postgres.MustOpen(ctx, cfg.DB.DSN)
	defer pool.Close()
	ledger := postgres.NewTransactionStore(pool)

	// Redis is optional; without it gateway tokens are cached per process.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis ping fail")
		}
		defer rdb.Close()
	}

	// Gateway client
	var tokens *daraja.TokenSource
	if cfg.Gateway.ConsumerKey != "" {
		tokens = daraja.NewTokenSource(cfg.Gateway.AuthURL, cfg.Gateway.ConsumerKey, cfg.Gateway.ConsumerSecret, rdb)
	}
	gateway := daraja.NewClient(
		base.NewHTTPClient("daraja", cfg.Gateway.BaseURL, cfg.Gateway.TimeoutSec),
		tokens,
	)

	// Realtime channel (best-effort; polling carries the flow without it)
	var subscribe checkout.SubscribeFunc
	if cfg.Realtime.Enabled {
		dialer := realtime.NewDialer(cfg.Realtime.URL)
		subscribe = func(ctx context.Context, checkoutRequestID string, onEvent func(realtime.ChangeEvent)) (checkout.RealtimeSession, error) {
			return dialer.Subscribe(ctx, checkoutRequestID, onEvent)
		}
	}

	schedule := checkout.DefaultSchedule()
	if cfg.Payment.DeadlineSec > 0 {
		schedule.Deadline = time.Duration(cfg.Payment.DeadlineSec) * time.Second
	}
	svc := checkout.NewService(ledger, gateway, subscribe, schedule)

	r := httpx.NewRouter(httpx.RouterDependencies{
		Config:   cfg,
		Checkout: svc,
		Ledger:   ledger,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// The pay endpoint holds the connection for the whole confirmation
		// window, so the write timeout sits past the poll deadline.
		WriteTimeout: schedule.Deadline + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Msgf("FuelPay API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}
