package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cppla/circlefeed/config"
	"github.com/cppla/circlefeed/routes"
	"github.com/cppla/circlefeed/services"
	"github.com/cppla/circlefeed/store"
	"github.com/cppla/circlefeed/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
	utils.Sugar.Info("server stopped")
}

func run(ctx context.Context, cfg config.AppConfig) error {
	graph, posts, err := openRecordStores(cfg)
	if err != nil {
		return err
	}

	var rc *redis.Client
	if cfg.BucketBackend == "redis" {
		rc, err = utils.OpenRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rc.Close()
	}
	var buckets store.BucketStore = store.NewMemoryBuckets()
	if rc != nil {
		buckets = store.NewRedisBuckets(rc, cfg.RedisKeyPrefix)
	}
	utils.Sugar.Infof("stores ready: records=%s buckets=%s", cfg.DBDriver, cfg.BucketBackend)

	// Workers outlive the request context so queued fan-out drains on shutdown.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	dispatcher := services.NewDispatcher(cfg.Workers, cfg.QueueSize, utils.Logger.Named("dispatcher"))
	dispatcher.Start(workCtx)
	defer dispatcher.Close()

	svc := services.NewFeedService(services.Options{
		Graph:        graph,
		Posts:        posts,
		Buckets:      buckets,
		Runner:       dispatcher,
		Logger:       utils.Logger.Named("feed"),
		CommentLimit: cfg.CommentLimit,
		MaxAttempts:  cfg.MaxAttempts,
	})
	cache := utils.NewJSONCache(rc, cfg.RedisKeyPrefix+":cache:", seconds(cfg.PostCacheTTLSec))
	srv := utils.NewServer(":"+cfg.AppPort, routes.SetupRouter(cfg, svc, cache))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		svc.StartTruncationJob(gctx, seconds(cfg.TruncateIntervalSec), svc.CommentLimit())
		return nil
	})
	g.Go(func() error {
		svc.StartReconcileJob(gctx, seconds(cfg.ReconcileIntervalSec), seconds(cfg.ReconcileGraceSec), cfg.ReconcileBatch)
		return nil
	})
	utils.Sugar.Infof("starting server on port %s (graceful)", cfg.AppPort)
	return g.Wait()
}

// openRecordStores picks the system of record. The memory driver keeps
// everything in process and is meant for local runs.
func openRecordStores(cfg config.AppConfig) (store.GraphStore, store.PostStore, error) {
	if cfg.DBDriver == "memory" {
		return store.NewMemoryGraph(), store.NewMemoryPosts(), nil
	}
	db, err := config.InitDatabase(store.Models()...)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return store.NewGormGraph(db), store.NewGormPosts(db), nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
