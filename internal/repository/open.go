package repository

import (
	"context"
	"fmt"

	"github.com/quocanhngo/memento/internal/config"
	"github.com/quocanhngo/memento/internal/model"
	"github.com/quocanhngo/memento/migrations"
	"github.com/quocanhngo/memento/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenStore builds the subscriber store selected by STORE_DRIVER. Any error
// here means the configured backend is unusable and startup should stop.
func OpenStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (SubscriberStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMinIO:
		objects, err := storage.NewMinIO(ctx, storage.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"bucket": cfg.MinIO.Bucket, "object": cfg.Store.ObjectKey}).Info("✅ Connected to MinIO")
		return NewSnapshotStore(ctx, NewObjectBackend(objects, cfg.Store.ObjectKey))

	case config.StoreDriverPostgres:
		db, err := openDatabase(cfg, log)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db), nil

	default:
		backend, err := NewFileBackend(cfg.Store.FilePath)
		if err != nil {
			return nil, err
		}
		log.WithField("path", cfg.Store.FilePath).Info("📁 Using subscription file")
		return NewSnapshotStore(ctx, backend)
	}
}

func openDatabase(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("✅ Connected to PostgreSQL")

	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.WithError(err).Warn("⚠️  Migration failed, falling back to GORM AutoMigrate")
		if err := db.AutoMigrate(&model.Subscriber{}); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	log.Info("✅ Database migrated successfully")
	return db, nil
}

// OpenDeliveryLog builds the delivery log selected by DELIVERY_LOG_DRIVER.
// rdb may be nil unless the redis driver is selected.
func OpenDeliveryLog(cfg *config.Config, rdb *redis.Client) (DeliveryLog, error) {
	switch cfg.DeliveryLog.Driver {
	case config.DeliveryLogNone:
		return NopDeliveryLog{}, nil
	case config.DeliveryLogRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis delivery log requires a redis connection")
		}
		return NewRedisDeliveryLog(rdb, cfg.DeliveryLog.RedisKey, cfg.DeliveryLog.MaxEntries), nil
	default:
		return NewFileDeliveryLog(cfg.DeliveryLog.FilePath)
	}
}
