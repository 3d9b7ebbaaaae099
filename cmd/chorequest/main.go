package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/chorequest/internal/backup"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/logging"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/scheduler"
	"github.com/dukerupert/chorequest/internal/server"
	"github.com/dukerupert/chorequest/internal/storage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "gen-vapid" {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("CHOREQUEST_VAPID_PUBLIC_KEY=%s\nCHOREQUEST_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	s3cfg := storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}
	var backups *backup.Manager
	if cfg.BackupEnabled() {
		backups = backup.NewManager(db, backup.Config{
			S3:         s3cfg,
			Passphrase: cfg.BackupPassphrase,
			Retention:  time.Duration(cfg.BackupRetentionDays) * 24 * time.Hour,
		}, logger.With("component", "backup"))
	}

	if len(os.Args) > 1 {
		if err := runCommand(backups, os.Args[1:]); err != nil {
			slog.Error("command failed", "command", os.Args[1], "error", err)
			os.Exit(1)
		}
		return
	}

	opts := server.Options{
		JWTSecret:    cfg.JWTSecret,
		TokenTTL:     cfg.TokenTTL,
		InterestRate: cfg.InterestRate,
		Location:     loc,
		CronSecret:   cfg.CronSecret,
		Scheduler: scheduler.Options{
			Interval: cfg.SchedulerInterval,
			Timeout:  cfg.JobTimeout,
			Location: loc,
		},
		Push: push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subject:         cfg.VAPIDSubject,
		},
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		opts.Redis = rdb
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	if cfg.S3Enabled() {
		opts.Photos = storage.New(s3cfg)
		slog.Info("photo storage enabled", "bucket", cfg.S3Bucket)
	}
	if !cfg.PushEnabled() {
		slog.Info("push notifications disabled, run with gen-vapid to create keys")
	}

	srv := server.New(db, opts, logger)
	if backups != nil {
		srv.Scheduler().EnableBackup(backups)
		slog.Info("nightly backups enabled", "retention_days", cfg.BackupRetentionDays)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	srv.StartCleanup(bgCtx)
	if cfg.SchedulerEnabled {
		srv.Scheduler().Start(bgCtx)
	}

	go func() {
		slog.Info("chorequest starting", "addr", ":"+cfg.Port, "timezone", loc.String())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if cfg.SchedulerEnabled {
		srv.Scheduler().Stop()
	}
	bgCancel()
	srv.Notifier().Wait()
}

// runCommand handles the maintenance subcommands:
//
//	backup                 take a snapshot now
//	restore <key> <path>   write an archive ("latest" for the newest) to path
func runCommand(backups *backup.Manager, args []string) error {
	switch args[0] {
	case "backup", "restore":
		if backups == nil {
			return fmt.Errorf("backups need S3 credentials and CHOREQUEST_BACKUP_PASSPHRASE")
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if args[0] == "backup" {
		res, err := backups.Run(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d bytes, %d pruned)\n", res.Key, res.Size, res.Pruned)
		return nil
	}
	if len(args) != 3 {
		return fmt.Errorf("usage: restore <key|latest> <path>")
	}
	return backups.Restore(ctx, args[1], args[2])
}
