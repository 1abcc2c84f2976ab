package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"raffle-ledger/internal/config"

	glog "github.com/google/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init creates a SQLite database connection with basic tuning.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	// ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	gormLogger := logger.Default
	if !cfg.LogMode {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(dsn(cfg)), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		if db != nil {
			_ = Close(db)
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	// connection pool
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// WAL 模式持久化在数据库文件里，其余 pragma 通过 DSN 对每个连接生效
	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		glog.Warningf("database: enable WAL on %s: %v", cfg.Path, err)
	}

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dsn(cfg config.DatabaseConfig) string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	sep := "?"
	if strings.Contains(cfg.Path, "?") {
		sep = "&"
	}
	// 事务以 BEGIN IMMEDIATE 开始：先读后写的事务在 WAL 下升级写锁会直接 SQLITE_BUSY，
	// 提前拿写锁才能让 busy_timeout 生效
	return fmt.Sprintf("%s%s_busy_timeout=%d&_synchronous=NORMAL&_foreign_keys=on&_txlock=immediate", cfg.Path, sep, busy)
}
