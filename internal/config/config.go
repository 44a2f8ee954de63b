package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/Skotchmaster/ebook_shop/internal/models"
	"github.com/Skotchmaster/ebook_shop/pkg/db"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
)

type Config struct {
	DB_HOST        string
	DB_PORT        string
	DB_USER        string
	DB_PASSWORD    string
	DB_NAME        string
	ES_PORT        string
	ES_USER        string
	ES_PASSWORD    string
	ES_URL         string
	JWT_SECRET     string
	REFRESH_SECRET string
	KAFKA_ADDRESS  string
	BASE_URL       string
	LOG_LEVEL      string

	DOWNLOAD_TTL           time.Duration
	DOWNLOAD_ONE_TIME      bool
	DEFAULT_DOWNLOAD_LIMIT uint
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		DB_HOST:        os.Getenv("DB_HOST"),
		DB_PORT:        os.Getenv("DB_PORT"),
		DB_USER:        os.Getenv("DB_USER"),
		DB_PASSWORD:    os.Getenv("DB_PASSWORD"),
		DB_NAME:        os.Getenv("DB_NAME"),
		ES_PORT:        os.Getenv("ES_PORT"),
		ES_USER:        os.Getenv("ES_USER"),
		ES_PASSWORD:    os.Getenv("ES_PASSWORD"),
		ES_URL:         os.Getenv("ES_URL"),
		JWT_SECRET:     os.Getenv("JWT_SECRET"),
		REFRESH_SECRET: os.Getenv("REFRESH_SECRET"),
		KAFKA_ADDRESS:  os.Getenv("KAFKA_ADDRESS"),
		BASE_URL:       os.Getenv("BASE_URL"),
		LOG_LEVEL:      os.Getenv("LOG_LEVEL"),

		DOWNLOAD_TTL:           10 * time.Minute,
		DOWNLOAD_ONE_TIME:      os.Getenv("DOWNLOAD_ONE_TIME") == "true",
		DEFAULT_DOWNLOAD_LIMIT: 0,
	}

	if config.BASE_URL == "" {
		config.BASE_URL = "http://localhost:8080"
	}

	if v := os.Getenv("DOWNLOAD_TTL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid DOWNLOAD_TTL_MINUTES: %q", v)
		}
		config.DOWNLOAD_TTL = time.Duration(minutes) * time.Minute
	}

	if v := os.Getenv("DEFAULT_DOWNLOAD_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid DEFAULT_DOWNLOAD_LIMIT: %q", v)
		}
		config.DEFAULT_DOWNLOAD_LIMIT = uint(limit)
	}

	return config, nil
}

func InitDB() (*gorm.DB, error) {
	configuration, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	host := configuration.DB_HOST
	port := configuration.DB_PORT
	user := configuration.DB_USER
	password := configuration.DB_PASSWORD
	dbname := configuration.DB_NAME

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbname,
	)
	conn, err := db.Open(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}
	if err := conn.AutoMigrate(
		&models.Book{},
		&models.User{},
		&models.RefreshToken{},
		&models.Address{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.PurchaseItem{},
		&models.DownloadLink{},
		&models.DownloadLog{},
		&models.Payment{},
	); err != nil {
		return nil, fmt.Errorf("не удалось выполнить миграцию: %w", err)
	}
	return conn, nil
}
