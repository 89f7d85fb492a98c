package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Port            string
	BindAddress     string
	StoreBackend    string
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisPrefix     string
	JWTSecret       string
	RoundResetDelay time.Duration
	CursorThrottle  time.Duration
	BannedWords     []string
	CORSOrigins     []string
	AdminEmails     []string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		BindAddress:     getEnv("BIND_ADDRESS", "localhost"),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "gamesync"),
		DBPassword:      getEnv("DB_PASSWORD", "gamesync123"),
		DBName:          getEnv("DB_NAME", "gamesync"),
		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisPrefix:     getEnv("REDIS_PREFIX", "gamesync:"),
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		RoundResetDelay: getMillis("ROUND_RESET_DELAY_MS", 3000),
		CursorThrottle:  getMillis("CURSOR_THROTTLE_MS", 50),
		BannedWords:     getList("BANNED_WORDS", ""),
		CORSOrigins:     getList("CORS_ORIGINS", "*"),
		AdminEmails:     getList("ADMIN_EMAILS", ""),
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddress + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getMillis(key string, defaultValue int) time.Duration {
	ms, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil || ms < 0 {
		ms = defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func getList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	// TranslateError maps unique violations to gorm.ErrDuplicatedKey, which
	// the store retries on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	return client
}
