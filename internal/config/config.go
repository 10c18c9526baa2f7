// Пакет config — загрузка и валидация конфигурации Personal Cloud API
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Personal Cloud API.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корень хранилища файлов
	StorageDir string
	// Директория временных ZIP-архивов (всегда вне StorageDir)
	ScratchDir string
	// Префикс публичного монтирования хранилища
	PublicPrefix string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Секрет подписи HS256 (static режим аутентификации)
	JWTSecret string
	// Издатель и аудитория токенов
	JWTIssuer   string
	JWTAudience string
	// Срок жизни выдаваемых токенов
	TokenTTL time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// URL JWKS endpoint внешнего IdP (jwks режим, опционально)
	JWKSURL string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Учётные данные администратора для /api/auth/login
	AdminUser     string
	AdminPassword string
	// Возраст, после которого временный архив считается сиротой
	ZipTTL time.Duration
	// Интервал запуска уборки scratch-директории
	JanitorInterval time.Duration
	// Путь к TLS сертификату и ключу (опционально)
	TLSCert string
	TLSKey  string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// PC_PORT — порт HTTP-сервера (по умолчанию 5000, как в оригинале)
	port, err := getEnvInt("PC_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("PC_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("PC_PORT: значение %d вне диапазона 1-65535", port)
	}
	cfg.Port = port

	// PC_STORAGE_DIR — обязательный, корень хранилища
	cfg.StorageDir, err = getEnvRequired("PC_STORAGE_DIR")
	if err != nil {
		return nil, err
	}

	// PC_SCRATCH_DIR — директория временных архивов
	// (по умолчанию поддиректория системного temp)
	cfg.ScratchDir = getEnvDefault("PC_SCRATCH_DIR", filepath.Join(os.TempDir(), "personalcloud"))
	// Scratch внутри хранилища — временные архивы попадали бы
	// в листинги и статическую отдачу
	if scratchInsideStorage(cfg.StorageDir, cfg.ScratchDir) {
		return nil, fmt.Errorf("PC_SCRATCH_DIR: %q не может находиться внутри PC_STORAGE_DIR %q",
			cfg.ScratchDir, cfg.StorageDir)
	}

	// PC_PUBLIC_PREFIX — префикс публичных URL (по умолчанию /Archivos)
	cfg.PublicPrefix = getEnvDefault("PC_PUBLIC_PREFIX", "/Archivos")
	if !strings.HasPrefix(cfg.PublicPrefix, "/") {
		return nil, fmt.Errorf("PC_PUBLIC_PREFIX: значение %q должно начинаться с /", cfg.PublicPrefix)
	}

	// PC_MAX_UPLOAD_SIZE — максимальный размер загрузки (по умолчанию 512 MB)
	maxUpload, err := getEnvInt64("PC_MAX_UPLOAD_SIZE", 512<<20)
	if err != nil {
		return nil, fmt.Errorf("PC_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("PC_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}
	cfg.MaxUploadSize = maxUpload

	// PC_JWKS_URL — опциональный, включает jwks режим аутентификации
	cfg.JWKSURL = getEnvDefault("PC_JWKS_URL", "")

	// PC_JWT_SECRET / PC_ADMIN_USER / PC_ADMIN_PASSWORD — обязательны
	// в static режиме (без внешнего IdP login выдаёт токены сам)
	cfg.JWTSecret = getEnvDefault("PC_JWT_SECRET", "")
	cfg.AdminUser = getEnvDefault("PC_ADMIN_USER", "")
	cfg.AdminPassword = getEnvDefault("PC_ADMIN_PASSWORD", "")
	if cfg.JWKSURL == "" {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("PC_JWT_SECRET: обязательная переменная окружения не задана (или задайте PC_JWKS_URL)")
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("PC_JWT_SECRET: длина секрета должна быть не менее 32 символов")
		}
		if cfg.AdminUser == "" || cfg.AdminPassword == "" {
			return nil, fmt.Errorf("PC_ADMIN_USER/PC_ADMIN_PASSWORD: обязательны в static режиме аутентификации")
		}
	}

	// PC_JWT_ISSUER / PC_JWT_AUDIENCE — проверяются у всех токенов
	cfg.JWTIssuer = getEnvDefault("PC_JWT_ISSUER", "PersonalCloudApi")
	cfg.JWTAudience = getEnvDefault("PC_JWT_AUDIENCE", "PersonalCloudClients")

	// PC_TOKEN_TTL — срок жизни выдаваемых токенов (по умолчанию 2h)
	cfg.TokenTTL, err = getEnvDuration("PC_TOKEN_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PC_TOKEN_TTL: %w", err)
	}

	// PC_JWT_LEEWAY — допуск времени при валидации (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("PC_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PC_JWT_LEEWAY: %w", err)
	}

	// PC_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("PC_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PC_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// PC_ZIP_TTL — возраст архива-сироты (по умолчанию 1h)
	cfg.ZipTTL, err = getEnvDuration("PC_ZIP_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PC_ZIP_TTL: %w", err)
	}

	// PC_JANITOR_INTERVAL — интервал уборки (по умолчанию 15m)
	cfg.JanitorInterval, err = getEnvDuration("PC_JANITOR_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PC_JANITOR_INTERVAL: %w", err)
	}

	// PC_TLS_CERT / PC_TLS_KEY — опциональная пара TLS
	cfg.TLSCert = getEnvDefault("PC_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("PC_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("PC_TLS_CERT и PC_TLS_KEY должны задаваться вместе")
	}

	// PC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PC_LOG_LEVEL: %w", err)
	}

	// PC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// PC_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 30s)
	cfg.ShutdownTimeout, err = getEnvDuration("PC_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// scratchInsideStorage сообщает, совпадает ли scratch-директория с корнем
// хранилища или лежит внутри него.
func scratchInsideStorage(storageDir, scratchDir string) bool {
	rel, err := filepath.Rel(filepath.Clean(storageDir), filepath.Clean(scratchDir))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
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
