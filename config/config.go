package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig  ServerConfig  `json:"server"`
	AdminConfig   AdminConfig   `json:"admin"`
	RedisConfig   RedisConfig   `json:"redis"`
	DBConfig      DBConfig      `json:"database"`
	VaultConfig   VaultConfig   `json:"vault"`
	AIConfig      AIConfig      `json:"ai"`
	StorageConfig StorageConfig `json:"storage"`
	LoggingConfig LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // comma-separated CORS origins
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AdminConfig holds the shared secret gating license-management routes
type AdminConfig struct {
	Secret string `json:"secret"`
}

// RedisConfig holds the license record store configuration.
// When disabled the gateway falls back to an in-memory store (dev/test only).
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DBConfig holds Postgres configuration for the usage audit log
type DBConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path for gateway secrets
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// AIConfig holds extraction service configuration
type AIConfig struct {
	Provider     string        `json:"provider"` // "gemini" or "openai"
	GeminiAPIKey string        `json:"gemini_api_key"`
	OpenAIAPIKey string        `json:"openai_api_key"`
	Model        string        `json:"model"`
	MaxTokens    int           `json:"max_tokens"`
	Timeout      time.Duration `json:"timeout"`
}

// StorageConfig holds object storage configuration for receipt uploads
type StorageConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Secure    bool   `json:"secure"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output (console writer otherwise)
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "http://localhost:5173")
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION", "false") == "true"
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Admin config
	cfg.AdminConfig.Secret = getEnvOrDefault("ADMIN_SECRET", cfg.AdminConfig.Secret)

	// Redis config (license record store)
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Database config (audit log)
	cfg.DBConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DBConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("DB_USER", "gateway")
	cfg.DBConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DBConfig.Password)
	cfg.DBConfig.Database = getEnvOrDefault("DB_NAME", "gateway")
	cfg.DBConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "expense-gateway")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// AI config
	cfg.AIConfig.Provider = getEnvOrDefault("AI_PROVIDER", "gemini")
	cfg.AIConfig.GeminiAPIKey = getEnvOrDefault("AI_GEMINI_API_KEY", cfg.AIConfig.GeminiAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("AI_OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.Model = getEnvOrDefault("AI_MODEL", "gemini-2.0-flash")
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", 1024)
	cfg.AIConfig.Timeout = getEnvDurationOrDefault("AI_TIMEOUT", 30*time.Second)

	// Storage config
	cfg.StorageConfig.Endpoint = getEnvOrDefault("STORAGE_ENDPOINT", cfg.StorageConfig.Endpoint)
	cfg.StorageConfig.AccessKey = getEnvOrDefault("STORAGE_ACCESS_KEY", cfg.StorageConfig.AccessKey)
	cfg.StorageConfig.SecretKey = getEnvOrDefault("STORAGE_SECRET_KEY", cfg.StorageConfig.SecretKey)
	cfg.StorageConfig.Bucket = getEnvOrDefault("STORAGE_BUCKET", "receipts")
	cfg.StorageConfig.Region = getEnvOrDefault("STORAGE_REGION", "auto")
	cfg.StorageConfig.Secure = getEnvOrDefault("STORAGE_SECURE", "true") == "true"

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
