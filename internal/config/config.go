package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Grading    GradingConfig
	CORS       CORSConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	DSN      string

	MaxOpenConns int
	MaxIdleConns int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type GradingConfig struct {
	PolicyTTL       time.Duration
	RefreshSchedule string
	EligibilityMode string
}

type CORSConfig struct {
	Origins []string
}

type MonitoringConfig struct {
	PrometheusEnabled bool
}

func Load() (*Config, error) {
	godotenv.Load()

	driver := strings.ToLower(getEnv("DB_DRIVER", "postgres"))
	dbHost := getEnv("DB_HOST", "localhost")
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "")
	dbName := getEnv("DB_NAME", "results")

	var dbPort, dsn string
	switch driver {
	case "postgres":
		dbPort = getEnv("DB_PORT", "5432")
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			dbHost, dbUser, dbPass, dbName, dbPort, getEnv("DB_SSLMODE", "disable"))
	case "mysql":
		dbPort = getEnv("DB_PORT", "3306")
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			dbUser, dbPass, dbHost, dbPort, dbName)
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	if explicit := os.Getenv("DB_DSN"); explicit != "" {
		dsn = explicit
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:   driver,
			Host:     dbHost,
			Port:     dbPort,
			User:     dbUser,
			Password: dbPass,
			Name:     dbName,
			DSN:      dsn,

			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", ""),
		},
		Grading: GradingConfig{
			PolicyTTL:       getEnvDuration("GRADING_POLICY_TTL", 10*time.Minute),
			RefreshSchedule: getEnv("GRADING_POLICY_REFRESH", "@every 5m"),
			EligibilityMode: strings.ToLower(getEnv("ELIGIBILITY_MODE", "strict")),
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:5173"), ","),
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: getEnv("PROMETHEUS_ENABLED", "true") == "true",
		},
	}

	if cfg.JWT.Secret == "" && cfg.Server.Env != "test" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.Grading.EligibilityMode {
	case "strict", "lenient":
	default:
		return nil, fmt.Errorf("ELIGIBILITY_MODE must be strict or lenient, got %q", cfg.Grading.EligibilityMode)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
