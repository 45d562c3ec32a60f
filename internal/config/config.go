package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"copytrade/internal/exchange"
	"copytrade/pkg/ratelimit"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Sync      SyncConfig
	Dispatch  DispatchConfig
	Exchanges ExchangesConfig
	Audit     AuditConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// EncryptionKey - ключ шифрования API ключей бирж (32 байта или пароль для scrypt)
	EncryptionKey string
	// DeterministicEncryption - одинаковый plaintext даёт одинаковый шифротекст
	DeterministicEncryption bool
	// WebhookSecretHash - bcrypt хэш общего секрета вебхука; пусто - без проверки
	WebhookSecretHash string
}

// SyncConfig - синхронизация аккаунтов
type SyncConfig struct {
	Interval      time.Duration // период фоновой синхронизации; 0 - выключена
	Concurrency   int           // пользователей одновременно
	ExchangeDelay time.Duration // пауза между биржами одного пользователя
	CallTimeout   time.Duration // таймаут одного вызова биржи
	ClientIdleTTL time.Duration // клиенты без обращений дольше удаляются из кэша
	Statuses      []string      // фильтр пользователей фоновой синхронизации; пусто - все
}

// DispatchConfig - исполнение сигналов
type DispatchConfig struct {
	DefaultOrderAmount decimal.Decimal
	Concurrency        int
	// Timeout - верхняя граница исполнения одного сигнала
	Timeout time.Duration
}

// ExchangesConfig - параметры клиентов бирж
type ExchangesConfig struct {
	// OverridesFile - YAML с base_url и rate_limit по биржам
	OverridesFile string
	RecvWindow    time.Duration
	SetupRetries  int
	BaseURLs      map[exchange.ID]string
	RateLimits    map[string]ratelimit.Limit
}

// AuditConfig - журнал аудита
type AuditConfig struct {
	Buffer            int
	Retention         time.Duration // 0 - хранить бессрочно
	RetentionInterval time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level      string
	Format     string
	Output     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// exchangeOverride - запись YAML файла EXCHANGES_CONFIG
type exchangeOverride struct {
	BaseURL   string          `yaml:"base_url"`
	RateLimit ratelimit.Limit `yaml:"rate_limit"`
}

// Load загружает конфигурацию.
//
// Порядок: .env (если есть, не перекрывает уже заданные переменные) →
// переменные окружения → YAML файл EXCHANGES_CONFIG для бирж.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "copytrade"),
			User:         getEnv("DB_USER", "copytrade"),
			Password:     getEnv("DB_PASSWORD", ""),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Security: SecurityConfig{
			EncryptionKey:           getEnv("ENCRYPTION_KEY", ""),
			DeterministicEncryption: getEnvAsBool("VAULT_DETERMINISTIC", false),
			WebhookSecretHash:       getEnv("WEBHOOK_SECRET_HASH", ""),
		},
		Sync: SyncConfig{
			Interval:      getEnvAsDuration("SYNC_INTERVAL", 5*time.Minute),
			Concurrency:   getEnvAsInt("SYNC_CONCURRENCY", 8),
			ExchangeDelay: getEnvAsDuration("SYNC_EXCHANGE_DELAY", 300*time.Millisecond),
			CallTimeout:   getEnvAsDuration("EXCHANGE_CALL_TIMEOUT", 10*time.Second),
			ClientIdleTTL: getEnvAsDuration("CLIENT_IDLE_TTL", time.Hour),
			Statuses:      getEnvAsList("SYNC_STATUSES"),
		},
		Dispatch: DispatchConfig{
			DefaultOrderAmount: getEnvAsDecimal("DEFAULT_ORDER_AMOUNT", decimal.RequireFromString("0.001")),
			Concurrency:        getEnvAsInt("DISPATCH_CONCURRENCY", 16),
			Timeout:            getEnvAsDuration("DISPATCH_TIMEOUT", 2*time.Minute),
		},
		Exchanges: ExchangesConfig{
			OverridesFile: getEnv("EXCHANGES_CONFIG", ""),
			RecvWindow:    getEnvAsDuration("EXCHANGE_RECV_WINDOW", 30*time.Second),
			SetupRetries:  getEnvAsInt("EXCHANGE_SETUP_RETRIES", 3),
			BaseURLs:      make(map[exchange.ID]string),
			RateLimits:    make(map[string]ratelimit.Limit),
		},
		Audit: AuditConfig{
			Buffer:            getEnvAsInt("AUDIT_BUFFER", 1024),
			Retention:         getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
			RetentionInterval: getEnvAsDuration("AUDIT_RETENTION_INTERVAL", 6*time.Hour),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if cfg.Exchanges.OverridesFile != "" {
		if err := cfg.Exchanges.loadOverrides(cfg.Exchanges.OverridesFile); err != nil {
			return nil, err
		}
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadOverrides читает YAML вида:
//
//	okx:
//	  base_url: https://www.okx.com
//	  rate_limit: {rate: 10, burst: 20}
func (e *ExchangesConfig) loadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read EXCHANGES_CONFIG: %w", err)
	}

	var overrides map[string]exchangeOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse EXCHANGES_CONFIG: %w", err)
	}

	for name, o := range overrides {
		id, err := exchange.ParseID(name)
		if err != nil {
			return fmt.Errorf("EXCHANGES_CONFIG: %w", err)
		}
		if o.BaseURL != "" {
			e.BaseURLs[id] = strings.TrimRight(o.BaseURL, "/")
		}
		if o.RateLimit.Rate > 0 {
			e.RateLimits[string(id)] = o.RateLimit
		}
	}
	return nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей бирж
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting API keys")
	}
	if len(c.Security.EncryptionKey) != 32 && len(c.Security.EncryptionKey) < 16 {
		return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes or a passphrase of at least 16 characters")
	}

	if h := c.Security.WebhookSecretHash; h != "" && !strings.HasPrefix(h, "$2") {
		return fmt.Errorf("WEBHOOK_SECRET_HASH must be a bcrypt hash")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("SYNC_INTERVAL cannot be negative, got %v", c.Sync.Interval)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be positive, got %d", c.Sync.Concurrency)
	}
	if c.Sync.ExchangeDelay < 0 {
		return fmt.Errorf("SYNC_EXCHANGE_DELAY cannot be negative, got %v", c.Sync.ExchangeDelay)
	}
	for _, st := range c.Sync.Statuses {
		switch st {
		case "active", "paused", "disabled":
		default:
			return fmt.Errorf("SYNC_STATUSES: unknown user status %q", st)
		}
	}
	if c.Sync.CallTimeout <= 0 {
		return fmt.Errorf("EXCHANGE_CALL_TIMEOUT must be positive, got %v", c.Sync.CallTimeout)
	}

	if !c.Dispatch.DefaultOrderAmount.IsPositive() {
		return fmt.Errorf("DEFAULT_ORDER_AMOUNT must be positive, got %s", c.Dispatch.DefaultOrderAmount)
	}
	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive, got %d", c.Dispatch.Concurrency)
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive, got %s", c.Dispatch.Timeout)
	}

	if c.Exchanges.SetupRetries < 1 || c.Exchanges.SetupRetries > 10 {
		return fmt.Errorf("EXCHANGE_SETUP_RETRIES must be between 1 and 10, got %d", c.Exchanges.SetupRetries)
	}

	if c.Audit.Buffer < 1 {
		return fmt.Errorf("AUDIT_BUFFER must be positive, got %d", c.Audit.Buffer)
	}
	if c.Audit.Retention < 0 {
		return fmt.Errorf("AUDIT_RETENTION cannot be negative, got %v", c.Audit.Retention)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value, err := decimal.NewFromString(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
