package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	GinMode    string

	// StoreDriver 為 mysql、postgres 或 bolt
	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	BoltPath    string

	JWTSecret string
	AESKey    string // 空值時不加密聯絡資訊

	RabbitMQURL   string
	EventExchange string

	OperatorAccountID      int
	OperatorName           string
	OperatorInitialBalance float64

	AuditSchedule string
}

// Load 載入 .env 後讀取環境變數
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using default environment variables: %v", err)
	}

	operatorID, err := strconv.Atoi(getEnv("OPERATOR_ACCOUNT_ID", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATOR_ACCOUNT_ID: %w", err)
	}
	initialBalance, err := strconv.ParseFloat(getEnv("OPERATOR_INITIAL_BALANCE", "100"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATOR_INITIAL_BALANCE: %w", err)
	}

	cfg := &Config{
		ServerPort:             getEnv("SERVER_PORT", "8080"),
		GinMode:                getEnv("GIN_MODE", "release"),
		StoreDriver:            getEnv("STORE_DRIVER", "mysql"),
		DBHost:                 getEnv("DB_HOST", "127.0.0.1"),
		DBPort:                 getEnv("DB_PORT", "3306"),
		DBUser:                 getEnv("DB_USER", "parking_user"),
		DBPassword:             getEnv("DB_PASSWORD", ""),
		DBName:                 getEnv("DB_NAME", "parking_db"),
		DBSSLMode:              getEnv("DB_SSLMODE", "disable"),
		BoltPath:               getEnv("BOLT_PATH", "parkwise.db"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		AESKey:                 os.Getenv("AES_KEY"),
		RabbitMQURL:            os.Getenv("RABBITMQ_URL"),
		EventExchange:          getEnv("EVENT_EXCHANGE", "parkwise.events"),
		OperatorAccountID:      operatorID,
		OperatorName:           getEnv("OPERATOR_NAME", "admin"),
		OperatorInitialBalance: initialBalance,
		AuditSchedule:          getEnv("AUDIT_SCHEDULE", "*/5 * * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "mysql", "postgres", "bolt":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	if c.OperatorAccountID <= 0 {
		return fmt.Errorf("OPERATOR_ACCOUNT_ID must be positive")
	}
	if c.OperatorInitialBalance < 0 {
		return fmt.Errorf("OPERATOR_INITIAL_BALANCE must not be negative")
	}
	return nil
}

// DSN 依 StoreDriver 組出連線字串，時間一律以 UTC 儲存
func (c *Config) DSN() string {
	if c.StoreDriver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
