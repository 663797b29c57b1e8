package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/invest-engine/api"
	"github.com/warp/invest-engine/config"
	"github.com/warp/invest-engine/events"
	"github.com/warp/invest-engine/invest"
	"github.com/warp/invest-engine/invest/store"
	"github.com/warp/invest-engine/maturity"
	"github.com/warp/invest-engine/store/postgres"
	"github.com/warp/invest-engine/store/sqlite"
)

// appStore is what every store driver provides.
type appStore interface {
	invest.TxStore
	invest.SweepRunStore
	invest.RequestLog
}

// app holds the wired dependencies shared by serve and sweep.
type app struct {
	cfg            config.Config
	logger         *zap.Logger
	store          appStore
	ledger         *invest.Ledger
	sweeper        *maturity.Sweeper
	openingBalance invest.Money

	closers []func() error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	opening, err := invest.ParseMoney(cfg.OpeningBalance)
	if err != nil {
		return fmt.Errorf("config: opening_balance: %w", err)
	}
	a.openingBalance = opening

	if err := a.openStore(ctx); err != nil {
		return err
	}

	products, err := a.store.Products(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(products) == 0 {
		if err := api.SeedProducts(ctx, a.store); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		a.logger.Info("seeded empty catalog with demo products", zap.Int("products", len(api.DemoProducts())))
	}

	notifier, err := a.openNotifier(ctx)
	if err != nil {
		return err
	}

	a.ledger = invest.NewLedger(a.store,
		invest.WithNotifier(notifier),
		invest.WithLogger(a.logger.Named("ledger")),
		invest.WithRetry(invest.RetryPolicy{
			Attempts:     cfg.Retry.Attempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		}))

	a.sweeper = maturity.NewSweeper(a.ledger, a.store,
		maturity.WithRunStore(a.store),
		maturity.WithLogger(a.logger.Named("maturity")),
		maturity.WithConfig(maturity.Config{
			Concurrency:   cfg.Sweep.Concurrency,
			SettleTimeout: cfg.Sweep.SettleTimeout,
			BatchLimit:    cfg.Sweep.BatchLimit,
		}))
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	cfg := a.cfg.Store
	switch cfg.Driver {
	case "memory":
		a.store = store.NewMemory()
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	case "postgres":
		opts := postgres.DefaultOptions()
		if cfg.MaxConns > 0 {
			opts.MaxConns = cfg.MaxConns
		}
		if cfg.LockTimeout > 0 {
			opts.LockTimeout = cfg.LockTimeout
		}
		opts.Logger = a.logger.Named("postgres")
		s, err := postgres.Connect(ctx, cfg.PostgresDSN, opts)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	return nil
}

func (a *app) openNotifier(ctx context.Context) (invest.Notifier, error) {
	switch a.cfg.Events.Driver {
	case "", "none":
		return events.Nop{}, nil
	case "redis":
		return a.openRedis(ctx)
	case "kafka":
		return a.openKafka(), nil
	case "all":
		rp, err := a.openRedis(ctx)
		if err != nil {
			return nil, err
		}
		return events.Fanout{rp, a.openKafka()}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", a.cfg.Events.Driver)
	}
}

func (a *app) openRedis(ctx context.Context) (*events.RedisPublisher, error) {
	cfg := a.cfg.Events
	rdb, err := events.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.logger.Info("publishing events to redis",
		zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.RedisChannel))
	return events.NewRedisPublisher(rdb, cfg.RedisChannel), nil
}

func (a *app) openKafka() *events.KafkaPublisher {
	cfg := a.cfg.Events
	w := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, a.logger.Named("kafka"))
	a.closers = append(a.closers, w.Close)
	a.logger.Info("publishing events to kafka",
		zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", w.Topic))
	return events.NewKafkaPublisher(w)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}
