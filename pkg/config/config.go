package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverFile     = "file"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	SQLite   SQLiteConfig
	Database DatabaseConfig
	GigaChat GigaChatConfig
	Learning LearningConfig
	JWT      JWTConfig
	Admin    AdminConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StoreConfig struct {
	Driver string
	Path   string
}

type SQLiteConfig struct {
	Path string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Enabled reports whether an online provider should be constructed at all.
func (c GigaChatConfig) Enabled() bool {
	return c.APIKey != ""
}

type LearningConfig struct {
	Interval        int
	Alpha           float64
	AcceptThreshold float64
	PruneThreshold  float64
	MinSamples      int
	DefaultResponse string
	Retention       int
	SessionLimit    int
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

type AdminConfig struct {
	PasswordHash string
}

const DefaultResponse = "I don't have a learned answer for that yet. Rate my replies so I can improve."

func Load() (*Config, error) {
	// .env is optional; plain environment variables work the same way.
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	providerTimeout, _ := strconv.Atoi(getEnv("PROVIDER_TIMEOUT_SECONDS", "15"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "12"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"

	interval, err := getEnvInt("LEARNING_INTERVAL", 7)
	if err != nil {
		return nil, err
	}
	minSamples, err := getEnvInt("LEARNING_MIN_SAMPLES", 5)
	if err != nil {
		return nil, err
	}
	retention, err := getEnvInt("INTERACTION_RETENTION", 10000)
	if err != nil {
		return nil, err
	}
	sessionLimit, err := getEnvInt("SESSION_LIMIT", 10000)
	if err != nil {
		return nil, err
	}
	alpha, err := getEnvFloat("LEARNING_ALPHA", 0.2)
	if err != nil {
		return nil, err
	}
	accept, err := getEnvFloat("LEARNING_ACCEPT_THRESHOLD", 0.6)
	if err != nil {
		return nil, err
	}
	prune, err := getEnvFloat("LEARNING_PRUNE_THRESHOLD", 0.15)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreDriverFile),
			Path:   getEnv("STORE_PATH", "data/knowledge_base.json"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/jarvis.db"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "jarvis"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			InsecureSkipVerify: insecureSkipVerify,
			Timeout:            time.Duration(providerTimeout) * time.Second,
		},
		Learning: LearningConfig{
			Interval:        interval,
			Alpha:           alpha,
			AcceptThreshold: accept,
			PruneThreshold:  prune,
			MinSamples:      minSamples,
			DefaultResponse: getEnv("LEARNING_DEFAULT_RESPONSE", DefaultResponse),
			Retention:       retention,
			SessionLimit:    sessionLimit,
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "change-me-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
		},
		Admin: AdminConfig{
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the learning loop cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverFile, StoreDriverSQLite, StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Learning.Interval < 1 {
		return fmt.Errorf("LEARNING_INTERVAL must be positive, got %d", c.Learning.Interval)
	}
	if c.Learning.Alpha <= 0 || c.Learning.Alpha > 1 {
		return fmt.Errorf("LEARNING_ALPHA must be in (0,1], got %v", c.Learning.Alpha)
	}
	if c.Learning.AcceptThreshold < 0 || c.Learning.AcceptThreshold > 1 {
		return fmt.Errorf("LEARNING_ACCEPT_THRESHOLD must be in [0,1], got %v", c.Learning.AcceptThreshold)
	}
	if c.Learning.PruneThreshold < 0 || c.Learning.PruneThreshold > 1 {
		return fmt.Errorf("LEARNING_PRUNE_THRESHOLD must be in [0,1], got %v", c.Learning.PruneThreshold)
	}
	if c.Learning.MinSamples < 0 {
		return fmt.Errorf("LEARNING_MIN_SAMPLES must not be negative, got %d", c.Learning.MinSamples)
	}
	if c.GigaChat.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
