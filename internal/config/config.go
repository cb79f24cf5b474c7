package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	// EmailTokenKey is the 32-byte key (base64 or raw) used to seal
	// customer emails into change-link tokens.
	EmailTokenKey string

	// Storefront database. The service reads the WooCommerce order tables
	// directly; it never owns this schema.
	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// GatewayConfigPath overrides the search path for gateways.yml.
	GatewayConfigPath string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "paygate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		EmailTokenKey: strings.TrimSpace(getenv("EMAIL_TOKEN_KEY", "")),

		DBType:            getenv("STORE_DB_TYPE", "mysql"),
		DBHost:            getenv("STORE_DB_HOST", "localhost"),
		DBPort:            getenv("STORE_DB_PORT", "3306"),
		DBName:            getenv("STORE_DB_NAME", "wordpress"),
		DBUser:            getenv("STORE_DB_USER", "wordpress"),
		DBPassword:        getenv("STORE_DB_PASSWORD", ""),
		DBMaxIdleConn:     getenvInt("STORE_DB_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("STORE_DB_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("STORE_DB_CONN_MAX_LIFETIME", 300),

		GatewayConfigPath: strings.TrimSpace(getenv("GATEWAY_CONFIG_PATH", "")),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
