package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"DailyPrompt/config"
	dbotel "DailyPrompt/pkg/database"
	"DailyPrompt/pkg/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

func Init() error {
	dbOnce.Do(func() {
		cfg := config.Cfg

		var gormDB *gorm.DB
		switch cfg.DatabaseDriver {
		case "sqlite":
			gormDB, dbErr = OpenSQLite(cfg.SQLitePath)
		default:
			gormDB, dbErr = Open(postgres.Open(cfg.GetDSN()))
		}
		if dbErr != nil {
			logger.Logger.Error("Failed to open database", zap.String("driver", cfg.DatabaseDriver), zap.Error(dbErr))
			return
		}

		if replica := cfg.GetReplicaDSN(); replica != "" && cfg.DatabaseDriver != "sqlite" {
			// 读多写少的查询（如配置列表）走只读副本，事务和写入始终在主库
			dbErr = gormDB.Use(dbresolver.Register(dbresolver.Config{
				Replicas: []gorm.Dialector{postgres.Open(replica)},
				Policy:   dbresolver.RandomPolicy{},
			}))
			if dbErr != nil {
				logger.Logger.Error("Failed to register read replica", zap.Error(dbErr))
				return
			}
		}

		if cfg.OTelEnabled {
			if err := dbotel.WithDefaultOTELPlugin(gormDB, cfg.ServiceName); err != nil {
				logger.Logger.Warn("Failed to register gorm otel plugin", zap.Error(err))
			}
		}

		sqlDB, err := gormDB.DB()
		if err != nil {
			dbErr = err
			return
		}
		if cfg.DatabaseDriver != "sqlite" {
			configureConnectionPool(sqlDB)
		}

		if err := sqlDB.Ping(); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to ping database", zap.Error(err))
			return
		}

		if err := Migrate(gormDB); err != nil {
			dbErr = fmt.Errorf("run database migration: %w", err)
			return
		}

		db = gormDB
		logger.Logger.Info("Database initialized successfully", zap.String("driver", cfg.DatabaseDriver))
	})

	return dbErr
}

// Open 使用统一的 gorm 配置打开连接，时间戳一律 UTC
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:                                   newLogger(),
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// OpenSQLite 本地开发和测试使用，单连接避免 SQLite 写锁冲突
func OpenSQLite(dsn string) (*gorm.DB, error) {
	gormDB, err := Open(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return gormDB, nil
}

// Use 替换全局连接，测试注入内存库时使用
func Use(d *gorm.DB) {
	db = d
}

func DB() *gorm.DB {
	return db
}

func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func configureConnectionPool(sqlDB *sql.DB) {
	cfg := config.Cfg

	sqlDB.SetMaxIdleConns(cfg.PostgreSQLMaxIdle)
	sqlDB.SetMaxOpenConns(cfg.PostgreSQLMaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}

func newLogger() gormlogger.Interface {
	level := gormlogger.Warn
	switch config.Cfg.LoggerLevel {
	case "DEBUG":
		level = gormlogger.Info
	case "ERROR":
		level = gormlogger.Error
	}

	return gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Logger.Sugar().Infof(format, args...)
}

// OpenMemory 打开一个已迁移的内存 SQLite，name 区分不同的库
func OpenMemory(name string) (*gorm.DB, error) {
	gormDB, err := OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		return nil, err
	}
	if err := Migrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}
