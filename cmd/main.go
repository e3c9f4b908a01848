package main

import (
	"campusfix/backend/internal/api/handler"
	"campusfix/backend/internal/auth"
	"campusfix/backend/internal/blob"
	"campusfix/backend/internal/chathub"
	"campusfix/backend/internal/complaint"
	"campusfix/backend/internal/config"
	"campusfix/backend/internal/localization"
	"campusfix/backend/internal/logger"
	"campusfix/backend/internal/notify"
	"campusfix/backend/internal/storage"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat, "campusfix")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.Open(cfg, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, err := buildNotifier(cfg, store, zl)
	if err != nil {
		return err
	}
	defer notifier.Wait()

	blobs, err := buildBlobStore(ctx, cfg, zl)
	if err != nil {
		return err
	}

	// Live chat runs over Redis when configured, in process otherwise.
	var broker chathub.Broker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		broker = chathub.NewRedisBroker(rdb, zl)
	}
	complaints := complaint.NewService(store, notifier, zl)
	hub := chathub.NewManagerService(broker, chathub.NewParticipants(store, complaints), zl)
	hubErr := make(chan error, 1)
	go func() { hubErr <- hub.Run(ctx) }()
	select {
	case <-hub.Ready():
	case err := <-hubErr:
		return err
	}

	chat := chathub.NewService(store, complaints, hub, zl)
	provider := auth.NewProvider(store, auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL), zl)

	if cfg.LogFormat != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(provider, complaints, chat, hub, blobs, zl)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(cfg.CorsOrigins),
		ReadTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		zl.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutting down")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildNotifier(cfg config.Config, store storage.Storage, zl *zap.Logger) (*notify.Notifier, error) {
	loc, err := localization.NewLocalizer()
	if err != nil {
		return nil, err
	}

	var direct notify.Dispatcher = notify.NewLogDispatcher(zl)
	if cfg.SMTP.Enabled() {
		direct = notify.NewEmailDispatcher(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From, loc)
	}

	var ops notify.Dispatcher
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegramDispatcher(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID, loc)
		if err != nil {
			return nil, err
		}
		ops = tg
	}
	return notify.NewNotifier(store, direct, ops, zl), nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, zl *zap.Logger) (blob.Store, error) {
	if !cfg.Minio.Enabled() {
		zl.Warn("MINIO_ENDPOINT not set, image uploads disabled")
		return blob.Disabled{}, nil
	}
	client, err := blob.NewMinioClient(ctx, cfg.Minio)
	if err != nil {
		return nil, err
	}
	return blob.NewMinioStore(client, cfg.Minio.Bucket, cfg.Minio.PublicURL), nil
}
