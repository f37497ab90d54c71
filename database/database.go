package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parkwise/config"
	"parkwise/models"
)

const (
	maxRetries    = 5
	retryInterval = 5 * time.Second
)

// Open 依設定連線 MySQL 或 PostgreSQL，失敗時重試
func Open(cfg *config.Config) (*gorm.DB, error) {
	// 根據環境設置日誌級別
	logLevel := logger.Info
	if cfg.GinMode == "release" {
		logLevel = logger.Warn
	}

	var dialector gorm.Dialector
	switch cfg.StoreDriver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("store driver %q is not a SQL database", cfg.StoreDriver)
	}

	var db *gorm.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logLevel),
			NowFunc: func() time.Time {
				return time.Now().UTC().Truncate(time.Millisecond)
			},
		})
		if err == nil {
			break
		}
		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 連線池配置
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Connected to %s database %s at %s:%s", cfg.StoreDriver, cfg.DBName, cfg.DBHost, cfg.DBPort)
	return db, nil
}

// AutoMigrate 建立或更新所有資料表
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Lot{},
		&models.Spot{},
		&models.Reservation{},
		&models.Account{},
		&models.Receipt{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}
