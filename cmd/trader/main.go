// Command trader runs the cross-venue hedge arbitrage daemon: it pairs a
// master and a slave venue adapter, evaluates the hedge strategy against
// their BBO streams, and executes paired orders when a signal fires.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"hedgearb/internal/bot"
	"hedgearb/internal/config"
	"hedgearb/internal/exchange"
	"hedgearb/internal/httpserver"
	"hedgearb/internal/metrics"
	"hedgearb/internal/models"
	"hedgearb/internal/secretstore"
	"hedgearb/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "trader: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	key, err := secretstore.DeriveKey(cfg.EncryptionPassphrase)
	if err != nil {
		return fmt.Errorf("derive secret-store key: %w", err)
	}

	masterSecret, err := secretstore.Open(models.Secret{Ciphertext: cfg.Master.Secret}, key)
	if err != nil {
		return fmt.Errorf("decrypt master secret: %w", err)
	}
	slaveSecret, err := secretstore.Open(models.Secret{Ciphertext: cfg.Slave.Secret}, key)
	if err != nil {
		return fmt.Errorf("decrypt slave secret: %w", err)
	}
	masterPrivCiphertext, err := secretstore.Open(models.Secret{Ciphertext: cfg.Master.PrivateKey}, key)
	if err != nil {
		return fmt.Errorf("decrypt master ws-api private key: %w", err)
	}
	seed, err := base64.StdEncoding.DecodeString(masterPrivCiphertext)
	if err != nil {
		return fmt.Errorf("decode master ws-api private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("master ws-api private key must be a %d-byte ed25519 seed, got %d", ed25519.SeedSize, len(seed))
	}
	privateKey := ed25519.NewKeyFromSeed(seed)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	master := exchange.NewVenueA(cfg.Master.APIKey, masterSecret, privateKey, log.Named("venue-a"))
	slave := exchange.NewVenueB(cfg.Slave.APIKey, slaveSecret, log.Named("venue-b"))

	strategy := bot.NewHedgeStrategy(bot.StrategyConfig{
		SpreadOpen:    cfg.Strategy.SpreadOpen,
		MaxDelayMs:    cfg.Strategy.MaxDelayMs,
		PosRate:       cfg.Strategy.PosRate,
		ReserveMargin: cfg.Strategy.ReserveMargin,
		BBOVolumeRate: cfg.Strategy.BBOVolumeRate,
		MinNominal:    cfg.Strategy.MinNominal,
		TakerFeeRate:  cfg.Strategy.TakerFeeRate,
	}, log.Named("strategy"))

	trader := bot.NewTrader(bot.TraderConfig{
		Quote:          cfg.Matching.Quote,
		RangeStart:     cfg.Matching.RangeStart,
		RangeEnd:       cfg.Matching.RangeEnd,
		Blacklist:      cfg.Matching.Blacklist,
		TargetLeverage: cfg.Strategy.Leverage,
		WSAPIPoolSize:  cfg.WSAPIPoolSize,
	}, master, slave, strategy, m, log.Named("trader"))

	health := func() bool { return true }
	server := httpserver.New(cfg.HTTP.Addr, health, registry, log.Named("http"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- trader.Run(ctx) }()
	go func() { errCh <- server.Run(ctx) }()

	var firstErr error
	remaining := 2
	select {
	case <-ctx.Done():
	case err := <-errCh:
		remaining--
		if err != nil {
			firstErr = err
			log.Error("component exited early", zap.Error(err))
		}
		stop()
	}

	for ; remaining > 0; remaining-- {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return firstErr
	}
	log.Info("shutdown complete")
	return nil
}
