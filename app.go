package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tarefasplus/config"
	"tarefasplus/dashboard"
	"tarefasplus/storage"
	"tarefasplus/subscription"
)

// app holds the process-wide store connection and its collaborators.
type app struct {
	cfg    config.Config
	logger *log.Logger

	rc      *redis.Client
	backend storage.Backend
	conn    *storage.Connection
	hub     *subscription.Hub
	engine  *dashboard.Engine

	closers []func()
}

func newApp(cfg config.Config) (*app, error) {
	logger := log.StandardLogger()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	a := &app{cfg: cfg, logger: logger}

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	rc, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.rc = rc
	a.closers = append(a.closers, closeRedis)

	a.conn = storage.NewConnection(backend, rc, cfg.Redis.UpdatesChannel, cfg.Redis.CacheTTL, logger)
	a.hub = subscription.NewHub(rc, cfg.Redis.UpdatesChannel, a.conn, cfg.ResyncInterval, logger)
	a.engine = dashboard.NewEngine(a.conn, logger)
	return a, nil
}

func openBackend(cfg config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendAzure:
		store, err := storage.New(cfg.Storage.ConnectionString, cfg.Storage.TasksTable)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return store, nil
	default:
		return storage.NewMemory(), nil
	}
}

// openRedis connects to the configured Redis. In memory mode without a Redis
// an embedded server carries the change notices and the cache.
func openRedis(cfg config.Config, logger *log.Logger) (*redis.Client, func(), error) {
	if cfg.Redis.ConnectionString == "" {
		if cfg.Storage.Backend != config.BackendMemory {
			return nil, nil, errors.New("missing redis config")
		}
		m, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("embedded redis: %w", err)
		}
		logger.WithField("addr", m.Addr()).Info("using embedded redis")
		rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
		return rc, func() {
			_ = rc.Close()
			m.Close()
		}, nil
	}
	opts, err := config.RedisOptions(cfg.Redis.ConnectionString)
	if err != nil {
		return nil, nil, err
	}
	rc := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// startHub runs the change-notice consumer until ctx ends and waits until it
// listens.
func (a *app) startHub(ctx context.Context) error {
	go a.hub.Run(ctx)
	select {
	case <-a.hub.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
