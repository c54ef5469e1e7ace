// Package app wires the service together: database, Redis, WebAuthn, the loan
// lifecycle manager, event publishing and image storage behind one gin router.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"toolhub/config"
	"toolhub/db"
	"toolhub/events"
	"toolhub/lifecycle"
	"toolhub/logging"
	"toolhub/session"
	"toolhub/storage"
)

// Short aliases for handlers.
type Ctx = gin.Context
type H = gin.H

// App holds every long-lived dependency.
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	WA     *webauthn.WebAuthn
	Config config.Config
	Log    logging.Logger

	Repo       *db.Repo
	Manager    *lifecycle.Manager
	Publisher  events.Publisher
	Images     *storage.Images // nil when MinIO is not configured
	Sessions   *session.AppSessionStore
	Ceremonies *session.CeremonyStore
}

// New connects to Postgres and Redis, configures the WebAuthn relying party and
// the optional RabbitMQ and MinIO backends. Postgres schema is not touched;
// run `toolhub migrate` first (or serve --migrate).
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*App, error) {
	gdb, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: 0})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "ToolHub",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	var pub events.Publisher = events.NewLogPublisher(log)
	if cfg.RabbitMQ.Enabled() {
		rmq, err := events.NewRabbitMQPublisher(cfg.RabbitMQ)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		pub = rmq
	}

	var images *storage.Images
	if cfg.Minio.Enabled() {
		mc, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			_ = rdb.Close()
			_ = pub.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			log.Warn(ctx, "minio bucket not ready; image uploads will fail", "bucket", mc.Bucket(), "err", err)
		}
		images = storage.NewImages(mc, storage.PublicBaseURL(cfg.Minio))
	}

	repo := db.NewRepo(gdb)
	manager := lifecycle.NewManager(repo, lifecycle.Options{
		Timeout:  cfg.Lifecycle.StoreTimeout,
		Retries:  cfg.Lifecycle.StoreRetries,
		Backoff:  cfg.Lifecycle.RetryBackoff,
		Fines:    lifecycle.FinePolicy{DefaultDailyRate: cfg.Lifecycle.DefaultDailyFine},
		Notifier: events.NewNotifier(pub, cfg.RabbitMQ.Queue),
		Logger:   log,
	})

	r := gin.Default()
	useCORS(r, cfg)

	return &App{
		Router:     r,
		DB:         gdb,
		RDB:        rdb,
		WA:         wa,
		Config:     cfg,
		Log:        log,
		Repo:       repo,
		Manager:    manager,
		Publisher:  pub,
		Images:     images,
		Sessions:   session.NewAppSessionStore(rdb, cfg.AppSessionTTL),
		Ceremonies: session.NewCeremonyStore(rdb, cfg.SessionTTL),
	}, nil
}

func (a *App) Close() {
	if a.Publisher != nil {
		_ = a.Publisher.Close()
	}
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
