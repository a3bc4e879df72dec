package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"mindconnect_booking/internal/schedule"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Schedule ScheduleConfig `json:"schedule"`
	Log      LogConfig      `json:"log"`
}

// TelegramConfig содержит настройки Telegram бота.
// Бот необязателен: без токена сервис работает только через HTTP API.
type TelegramConfig struct {
	Token         string `json:"token"`
	WebhookURL    string `json:"webhook_url"`
	SecretToken   string `json:"-"`
	ChatRateLimit int    `json:"chat_rate_limit"`
}

// Enabled сообщает, настроен ли Telegram бот
func (t TelegramConfig) Enabled() bool {
	return t.Token != ""
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port               string        `json:"port"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	IdleTimeout        time.Duration `json:"idle_timeout"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute"`
	AllowedOrigins     []string      `json:"allowed_origins"`
	// TrustedProxies адреса или CIDR прокси, которым доверяем X-Forwarded-For
	TrustedProxies     []string      `json:"trusted_proxies"`
}

// DatabaseConfig содержит настройки базы данных
type DatabaseConfig struct {
	Path        string        `json:"path"`
	ConnTimeout time.Duration `json:"conn_timeout"`
}

// ScheduleConfig содержит настройки расписания
type ScheduleConfig struct {
	DefaultWorkStart    string `json:"default_work_start"`
	DefaultWorkEnd      string `json:"default_work_end"`
	DefaultIntervalMins int    `json:"default_interval_mins"`
	BookingDays         int    `json:"booking_days"`
	SkipWeekend         bool   `json:"skip_weekend"`
	ReminderMins        int    `json:"reminder_mins"`
	Timezone            string `json:"timezone"`
	SlotsPerRow         int    `json:"slots_per_row"`
}

// Location возвращает часовой пояс расписания
func (s ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// LogConfig содержит настройки логирования
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json или console
}

// Load загружает конфигурацию из .env файла и переменных окружения
func Load() (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv собирает конфигурацию из переменных окружения без валидации
func FromEnv() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:         os.Getenv("TELEGRAM_TOKEN"),
			WebhookURL:    os.Getenv("WEBHOOK_URL"),
			SecretToken:   os.Getenv("TELEGRAM_SECRET_TOKEN"),
			ChatRateLimit: getEnvAsInt("TELEGRAM_CHAT_RATE_LIMIT", 20),
		},
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:        getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
			AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
			TrustedProxies:     getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			Path:        getEnv("DB_FILE", "mindconnect.db"),
			ConnTimeout: getEnvAsDuration("DB_CONN_TIMEOUT", 5*time.Second),
		},
		Schedule: ScheduleConfig{
			DefaultWorkStart:    getEnv("WORK_START", "09:00"),
			DefaultWorkEnd:      getEnv("WORK_END", "18:00"),
			DefaultIntervalMins: getEnvAsInt("SLOT_INTERVAL", 50),
			BookingDays:         getEnvAsInt("BOOKING_DAYS", 14),
			SkipWeekend:         getEnvAsBool("SKIP_WEEKEND", true),
			ReminderMins:        getEnvAsInt("REMINDER_MINS", 60),
			Timezone:            getEnv("TIMEZONE", "America/Sao_Paulo"),
			SlotsPerRow:         getEnvAsInt("SLOTS_PER_ROW", 2),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Telegram.Enabled() {
		if c.Telegram.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when TELEGRAM_TOKEN is set")
		}
		if !strings.HasPrefix(c.Telegram.WebhookURL, "https://") {
			return fmt.Errorf("WEBHOOK_URL must use https")
		}
		if c.Telegram.ChatRateLimit <= 0 {
			return fmt.Errorf("TELEGRAM_CHAT_RATE_LIMIT must be positive")
		}
	}

	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
			}
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_FILE is required")
	}

	// Валидация времени работы
	start, err := schedule.ParseClock(c.Schedule.DefaultWorkStart)
	if err != nil {
		return fmt.Errorf("invalid WORK_START format (expected HH:MM): %w", err)
	}
	end, err := schedule.ParseClock(c.Schedule.DefaultWorkEnd)
	if err != nil {
		return fmt.Errorf("invalid WORK_END format (expected HH:MM): %w", err)
	}
	if end <= start {
		return fmt.Errorf("WORK_END must be after WORK_START")
	}

	// Проверка логичности временных настроек
	if c.Schedule.DefaultIntervalMins <= 0 {
		return fmt.Errorf("SLOT_INTERVAL must be positive")
	}
	if c.Schedule.BookingDays <= 0 {
		return fmt.Errorf("BOOKING_DAYS must be positive")
	}
	if c.Schedule.ReminderMins < 0 {
		return fmt.Errorf("REMINDER_MINS must be non-negative")
	}
	if c.Schedule.SlotsPerRow <= 0 {
		return fmt.Errorf("SLOTS_PER_ROW must be positive")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}

	return nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAsInt получает переменную окружения как число
func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsBool получает переменную окружения как bool
func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvAsDuration получает переменную окружения как duration
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvAsList разбирает список через запятую
func getEnvAsList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
