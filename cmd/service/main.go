package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"playlist-access-service/internal/config"
	"playlist-access-service/internal/playlist"
)

func main() {
	logger := newLogger()

	app := &cli.Command{
		Name:  "playlist-service",
		Usage: "Playlists, their songs and who may see or edit them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				Sources: cli.EnvVars("PLAYLIST_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: func(ctx context.Context, cmd *cli.Command) error { return serve(ctx, cmd, logger) },
			},
			{
				Name:   "migrate",
				Usage:  "Create the database schema and exit",
				Action: func(ctx context.Context, cmd *cli.Command) error { return migrate(ctx, cmd, logger) },
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error { return serve(ctx, cmd, logger) },
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		logger.Fatal("playlist-service", "err", err)
	}
}

func newLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "playlist-service",
	})
}

func loadConfig(cmd *cli.Command, logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.LogLevel())
	return cfg, nil
}

func connectDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func migrate(ctx context.Context, cmd *cli.Command, logger *log.Logger) error {
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	pool, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := playlist.AutoMigrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("schema up to date")
	return nil
}

func serve(ctx context.Context, cmd *cli.Command, logger *log.Logger) error {
	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	pool, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := playlist.AutoMigrate(ctx, pool); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, events and cache degrade", "err", err)
		}
	}

	oracle := playlist.NewCachedOracle(
		playlist.NewHTTPOracle(
			&http.Client{Timeout: cfg.Oracle.Timeout.Duration},
			cfg.Oracle.CatalogServiceURL,
			cfg.Oracle.UserServiceURL,
		),
		rdb,
		cfg.Redis.ExistsCacheTTL.Duration,
	)
	events := playlist.NewRedisPublisher(rdb, logger.WithPrefix("playlist-service/events"))
	svc := playlist.NewService(playlist.NewPostgresStore(pool), oracle, events)

	var secret []byte
	if cfg.Server.JWTSecret != "" {
		secret = []byte(cfg.Server.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET is empty, trusting X-User-Id headers from the gateway")
	}
	srv := playlist.NewServer(svc, logger, playlist.ServerOptions{
		JWTSecret:      secret,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
