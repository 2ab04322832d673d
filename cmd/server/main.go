package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	firebase "firebase.google.com/go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/showdownclub/dugout/internal/blob"
	"github.com/showdownclub/dugout/internal/config"
	"github.com/showdownclub/dugout/internal/database"
	"github.com/showdownclub/dugout/internal/handler/health"
	"github.com/showdownclub/dugout/internal/migrations"
	"github.com/showdownclub/dugout/internal/server"
	"github.com/showdownclub/dugout/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	checks := make(map[string]health.Checker)
	publicURL := publicBase(cfg)

	// --- Firebase ---
	var app *firebase.App
	if cfg.UsesFirebase() {
		app, err = store.NewFirebaseApp(ctx, cfg.FirebaseCredentials, cfg.FirebaseDatabaseURL, cfg.FirebaseBucket)
		if err != nil {
			return err
		}
		logger.Info("initialized firebase", "database_url", cfg.FirebaseDatabaseURL)
	}

	// --- Store ---
	var (
		st    store.Store
		local *store.Local
		games server.GameLister
	)
	switch cfg.StoreBackend {
	case config.StoreLocal:
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		defer db.Close()

		n, err := migrations.Run(ctx, db)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to sqlite", "path", cfg.DBPath, "migrations_applied", n)
		checks["sqlite"] = health.CheckerFunc(db.PingContext)

		docs := store.NewDocStore(db)
		opts := []store.LocalOption{store.WithPersister(docs), store.WithLogger(logger)}

		// --- Redis ---
		if cfg.RedisURL != "" {
			rdb, err := openRedis(ctx, cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("connecting to redis: %w", err)
			}
			defer rdb.Close()
			logger.Info("connected to redis")
			checks["redis"] = health.CheckerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
			opts = append(opts, store.WithBus(store.NewRedisBus(rdb, store.DefaultChannel)))
		}

		local = store.NewLocal(opts...)
		defer local.Close()
		st, games = local, docs
	case config.StoreFirebase:
		fb, err := store.NewFirebase(ctx, app, cfg.FirebasePoll, logger)
		if err != nil {
			return err
		}
		checks["firebase"] = fb
		st = fb
	}

	// --- Blobs ---
	var (
		blobs blob.Store
		files server.BlobFiles
	)
	switch cfg.BlobBackend {
	case config.BlobDir:
		dir, err := blob.NewDir(afero.NewOsFs(), cfg.BlobDir, publicURL+"/blobs", cfg.BlobMaxBytes)
		if err != nil {
			return err
		}
		logger.Info("storing blobs on disk", "dir", cfg.BlobDir)
		blobs, files = dir, dir
	case config.BlobGCS:
		bucket, err := blob.NewGCS(ctx, app, cfg.FirebaseBucket, cfg.BlobMaxBytes)
		if err != nil {
			return err
		}
		logger.Info("storing blobs in bucket", "bucket", cfg.FirebaseBucket)
		checks["gcs"] = bucket
		blobs = bucket
	}

	access, err := server.NewAccess(cfg.AccessPasswordHash, cfg.AccessSecret)
	if err != nil {
		return err
	}
	if access == nil {
		logger.Warn("no access password configured, the table is open to anyone with the link")
	}

	if cfg.SeedDemo {
		if err := server.SeedDemo(ctx, logger, st); err != nil {
			return fmt.Errorf("seeding demo game: %w", err)
		}
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Store:        st,
		Blobs:        blobs,
		Games:        games,
		Files:        files,
		Access:       access,
		Checks:       checks,
		PublicURL:    cfg.PublicURL,
		MaxBlobBytes: cfg.BlobMaxBytes,
		SPADir:       cfg.WebDir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	if local != nil {
		g.Go(func() error {
			return local.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// publicBase is the origin blob URLs are built on. Blob URLs end up in
// game documents, so they must be absolute.
func publicBase(cfg *config.Config) string {
	if cfg.PublicURL != "" {
		return strings.TrimSuffix(cfg.PublicURL, "/")
	}
	if strings.HasPrefix(cfg.HTTPAddr, ":") {
		return "http://localhost" + cfg.HTTPAddr
	}
	return "http://" + cfg.HTTPAddr
}
