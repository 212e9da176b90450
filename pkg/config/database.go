package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB holds the optional connections the selected backends need. Unused
// ones stay nil.
type DB struct {
	SQL   *gorm.DB
	Mongo *mongo.Client
	Redis *redis.Client
}

// InitDB opens and pings every connection cfg selects.
func InitDB(ctx context.Context, cfg *Config) (*DB, error) {
	db := &DB{}

	switch cfg.PairIndex {
	case "postgres":
		sqlDB, err := initGorm(postgres.Open(cfg.PostgresURL))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db.SQL = sqlDB
		slog.Info("connected to PostgreSQL")
	case "sqlite":
		sqlDB, err := initGorm(sqlite.Open(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite pair index at %s: %w", cfg.SQLitePath, err)
		}
		db.SQL = sqlDB
		slog.Info("opened SQLite pair index", slog.String("path", cfg.SQLitePath))
	}

	if cfg.StoreBackend == BackendMongo {
		client, err := initMongo(ctx, cfg.MongoURI)
		if err != nil {
			db.CloseDB()
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		db.Mongo = client
		slog.Info("connected to MongoDB")
	}

	if cfg.RequestGuard == "redis" {
		client, err := initRedis(ctx, cfg.RedisAddr)
		if err != nil {
			db.CloseDB()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		db.Redis = client
		slog.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	}
	return db, nil
}

func initGorm(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// CloseDB closes the database connections
func (db *DB) CloseDB() {
	if db.SQL != nil {
		if sqlDB, err := db.SQL.DB(); err != nil {
			slog.Error("error getting SQL DB from GORM", slog.String("error", err.Error()))
		} else if err := sqlDB.Close(); err != nil {
			slog.Error("error closing SQL connection", slog.String("error", err.Error()))
		}
	}

	if db.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Mongo.Disconnect(ctx); err != nil {
			slog.Error("error closing MongoDB connection", slog.String("error", err.Error()))
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			slog.Error("error closing Redis connection", slog.String("error", err.Error()))
		}
	}
}
