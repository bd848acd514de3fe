// Пакет config — загрузка и валидация конфигурации Mediahub
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Mediahub.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Базовый URL приложения (для OAuth redirect URI; пустой — вычисляется из запроса)
	BaseURL string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Аутентификация ---

	// Минимальная длина пароля при локальной регистрации
	MinPasswordLength int
	// TTL одноразовых кодов подтверждения email
	OTPTTL time.Duration
	// Ключ шифрования session cookie (base64, 32 bytes; пустой — случайный)
	SessionKey string
	// Использовать Secure flag для cookies (true за HTTPS)
	SecureCookies bool

	// --- Allowlist администраторов ---

	// Email-адреса администраторов (через запятую, MH_ADMIN_EMAILS)
	AdminEmails []string
	// Путь к .env файлу для перечитывания allowlist (пустой — без перечитывания)
	EnvFile string
	// Интервал перечитывания allowlist из .env файла (0 — отключено)
	AllowlistReloadInterval time.Duration

	// --- SMTP (Notification Port) ---

	// Хост SMTP-сервера (пустой — доставка кодов в лог)
	SMTPHost string
	// Порт SMTP-сервера
	SMTPPort int
	// Имя пользователя SMTP
	SMTPUsername string
	// Пароль SMTP
	SMTPPassword string
	// Адрес отправителя (по умолчанию SMTPUsername)
	SMTPFrom string
	// Использовать STARTTLS
	SMTPUseTLS bool
	// Таймаут SMTP-соединения
	SMTPTimeout time.Duration

	// --- Google OAuth ---

	// Client ID Google OAuth (пустой — федерация отключена)
	GoogleClientID string
	// Client Secret Google OAuth
	GoogleClientSecret string
	// Таймаут HTTP-запросов к Google (token endpoint, JWKS)
	OAuthTimeout time.Duration

	// --- Rate limiting ---

	// Запросов в секунду на IP для /auth/* endpoints
	AuthRateLimit float64
	// Burst для rate limiter
	AuthRateBurst int

	// --- Мониторинг ---

	// Имя группы topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// MH_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("MH_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("MH_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MH_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// MH_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MH_LOG_LEVEL: %w", err)
	}

	// MH_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MH_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MH_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// MH_BASE_URL — внешний URL приложения (опционально)
	cfg.BaseURL = strings.TrimRight(getEnvDefault("MH_BASE_URL", ""), "/")

	// --- PostgreSQL ---

	// MH_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("MH_DB_HOST")
	if err != nil {
		return nil, err
	}

	// MH_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("MH_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MH_DB_PORT: %w", err)
	}

	// MH_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("MH_DB_NAME")
	if err != nil {
		return nil, err
	}

	// MH_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("MH_DB_USER")
	if err != nil {
		return nil, err
	}

	// MH_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("MH_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// MH_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("MH_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MH_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Аутентификация ---

	// MH_MIN_PASSWORD_LENGTH — минимальная длина пароля (по умолчанию 6)
	cfg.MinPasswordLength, err = getEnvInt("MH_MIN_PASSWORD_LENGTH", 6)
	if err != nil {
		return nil, fmt.Errorf("MH_MIN_PASSWORD_LENGTH: %w", err)
	}
	if cfg.MinPasswordLength < 1 {
		return nil, fmt.Errorf("MH_MIN_PASSWORD_LENGTH: значение %d должно быть положительным", cfg.MinPasswordLength)
	}

	// MH_OTP_TTL — время жизни одноразового кода (по умолчанию 10m)
	cfg.OTPTTL, err = getEnvDuration("MH_OTP_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MH_OTP_TTL: %w", err)
	}
	if cfg.OTPTTL <= 0 {
		return nil, fmt.Errorf("MH_OTP_TTL: значение должно быть положительным")
	}

	// MH_SESSION_KEY — ключ шифрования session cookie (опционально)
	cfg.SessionKey = getEnvDefault("MH_SESSION_KEY", "")

	// MH_SECURE_COOKIES — Secure flag для cookies (по умолчанию false)
	cfg.SecureCookies, err = getEnvBool("MH_SECURE_COOKIES", false)
	if err != nil {
		return nil, fmt.Errorf("MH_SECURE_COOKIES: %w", err)
	}

	// --- Allowlist администраторов ---

	// MH_ADMIN_EMAILS — email-адреса администраторов (через запятую)
	cfg.AdminEmails = parseCSV(getEnvDefault("MH_ADMIN_EMAILS", ""))

	// MH_ENV_FILE — путь к .env файлу для перечитывания allowlist (по умолчанию .env)
	cfg.EnvFile = getEnvDefault("MH_ENV_FILE", ".env")

	// MH_ALLOWLIST_RELOAD_INTERVAL — интервал перечитывания (по умолчанию 30s, 0 — отключено)
	cfg.AllowlistReloadInterval, err = getEnvDuration("MH_ALLOWLIST_RELOAD_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_ALLOWLIST_RELOAD_INTERVAL: %w", err)
	}

	// --- SMTP ---

	// MH_SMTP_HOST — хост SMTP (опционально; пустой — лог-fallback)
	cfg.SMTPHost = getEnvDefault("MH_SMTP_HOST", "")

	// MH_SMTP_PORT — порт SMTP (по умолчанию 587)
	cfg.SMTPPort, err = getEnvInt("MH_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("MH_SMTP_PORT: %w", err)
	}

	// MH_SMTP_USERNAME / MH_SMTP_PASSWORD — учётные данные SMTP
	cfg.SMTPUsername = getEnvDefault("MH_SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvDefault("MH_SMTP_PASSWORD", "")

	// MH_SMTP_FROM — адрес отправителя (по умолчанию MH_SMTP_USERNAME)
	cfg.SMTPFrom = getEnvDefault("MH_SMTP_FROM", cfg.SMTPUsername)

	// MH_SMTP_USE_TLS — STARTTLS (по умолчанию true)
	cfg.SMTPUseTLS, err = getEnvBool("MH_SMTP_USE_TLS", true)
	if err != nil {
		return nil, fmt.Errorf("MH_SMTP_USE_TLS: %w", err)
	}

	// MH_SMTP_TIMEOUT — таймаут SMTP (по умолчанию 10s)
	cfg.SMTPTimeout, err = getEnvDuration("MH_SMTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_SMTP_TIMEOUT: %w", err)
	}

	// --- Google OAuth ---

	// MH_GOOGLE_CLIENT_ID / MH_GOOGLE_CLIENT_SECRET — опциональные
	cfg.GoogleClientID = getEnvDefault("MH_GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnvDefault("MH_GOOGLE_CLIENT_SECRET", "")
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret == "" {
		return nil, fmt.Errorf("MH_GOOGLE_CLIENT_SECRET: обязателен при заданном MH_GOOGLE_CLIENT_ID")
	}

	// MH_OAUTH_TIMEOUT — таймаут обращений к провайдеру (по умолчанию 30s)
	cfg.OAuthTimeout, err = getEnvDuration("MH_OAUTH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_OAUTH_TIMEOUT: %w", err)
	}

	// --- Rate limiting ---

	// MH_AUTH_RATE_LIMIT — запросов в секунду на IP (по умолчанию 5)
	cfg.AuthRateLimit, err = getEnvFloat("MH_AUTH_RATE_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("MH_AUTH_RATE_LIMIT: %w", err)
	}
	if cfg.AuthRateLimit <= 0 {
		return nil, fmt.Errorf("MH_AUTH_RATE_LIMIT: значение должно быть положительным")
	}

	// MH_AUTH_RATE_BURST — burst (по умолчанию 10)
	cfg.AuthRateBurst, err = getEnvInt("MH_AUTH_RATE_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("MH_AUTH_RATE_BURST: %w", err)
	}
	if cfg.AuthRateBurst < 1 {
		return nil, fmt.Errorf("MH_AUTH_RATE_BURST: значение %d должно быть положительным", cfg.AuthRateBurst)
	}

	// --- Мониторинг ---

	// MH_DEPHEALTH_GROUP — группа topologymetrics (по умолчанию mediahub)
	cfg.DephealthGroup = getEnvDefault("MH_DEPHEALTH_GROUP", "mediahub")

	// MH_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("MH_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// MH_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("MH_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// SMTPConfigured сообщает, настроена ли доставка почты через SMTP.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// GoogleConfigured сообщает, настроена ли федерация через Google OAuth.
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает вещественное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
