package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lostpaws/lostpaws/internal/backup"
	"github.com/lostpaws/lostpaws/internal/database"
	"github.com/lostpaws/lostpaws/internal/logging"
	"github.com/lostpaws/lostpaws/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly
	godotenv.Load()

	logger := logging.Setup(os.Getenv("LOSTPAWS_LOG_LEVEL"), os.Getenv("LOSTPAWS_LOG_FORMAT"))

	port := envOr("LOSTPAWS_PORT", "8080")
	dbPath := envOr("LOSTPAWS_DB_PATH", "lostpaws.db")

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		GatewayURL:      os.Getenv("LOSTPAWS_PUSH_GATEWAY_URL"),
		VAPIDPublicKey:  os.Getenv("LOSTPAWS_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("LOSTPAWS_VAPID_PRIVATE_KEY"),
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("LOSTPAWS_S3_ENDPOINT"),
				Bucket:    os.Getenv("LOSTPAWS_S3_BUCKET"),
				Region:    envOr("LOSTPAWS_S3_REGION", "us-east-1"),
				AccessKey: os.Getenv("LOSTPAWS_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("LOSTPAWS_S3_SECRET_KEY"),
			},
			DBPath:        dbPath,
			Passphrase:    os.Getenv("LOSTPAWS_BACKUP_PASSPHRASE"),
			ScheduleHour:  envInt("LOSTPAWS_BACKUP_HOUR", 3),
			RetentionDays: envInt("LOSTPAWS_BACKUP_RETENTION_DAYS", 30),
		},
	}

	srv := server.New(db, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv.AlertService().Start(ctx)
	defer srv.AlertService().Stop()

	srv.BackupManager().Start(ctx)
	defer srv.BackupManager().Stop()

	// Expired rate-limit entries accumulate otherwise
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout: 5 * time.Second,
		// Emergency broadcasts dispatch inline, so writes get generous room
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("lostpaws listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
