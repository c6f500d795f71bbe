package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LoadEnv reads .env when present; otherwise the process environment is
// used as is.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg(".env not found, using system environment")
	}
}

func GetEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultVal
	}
	return val
}

func GetEnvAsBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultVal
	}
	return val
}

/*
|--------------------------------------------------------------------------
| Typed configuration
|--------------------------------------------------------------------------
*/

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	JWT      JWTConfig
}

type AppConfig struct {
	Name     string
	Env      string
	Host     string
	Port     string
	LogLevel string
}

// Addr - listen address for fiber.
func (a AppConfig) Addr() string {
	return a.Host + ":" + a.Port
}

type DatabaseConfig struct {
	Driver     string // mysql or sqlite3
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
	MaxOpen    int
	MaxIdle    int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

type QueueConfig struct {
	CounterBackend    string // sql or redis
	Classifications   string // Name:Prefix:Rank;...
	OpenAt            string
	CloseAt           string
	Timezone          string
	BroadcastDebounce time.Duration
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// Load builds the configuration from the environment. Call LoadEnv first
// to pick up .env.
func Load() Config {
	return Config{
		App: AppConfig{
			Name:     GetEnv("APP_NAME", "clinic-queue"),
			Env:      GetEnv("APP_ENV", "development"),
			Host:     GetEnv("APP_HOST", "0.0.0.0"),
			Port:     GetEnv("APP_PORT", "8080"),
			LogLevel: GetEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:     GetEnv("DB_DRIVER", "mysql"),
			Host:       GetEnv("DB_HOST", "127.0.0.1"),
			Port:       GetEnvAsInt("DB_PORT", 3306),
			User:       GetEnv("DB_USER", "root"),
			Password:   GetEnv("DB_PASSWORD", ""),
			Name:       GetEnv("DB_NAME", "clinic_queue"),
			SQLitePath: GetEnv("DB_SQLITE_PATH", "clinic-queue.db"),
			MaxOpen:    GetEnvAsInt("DB_MAX_OPEN", 25),
			MaxIdle:    GetEnvAsInt("DB_MAX_IDLE", 10),
		},
		Redis: RedisConfig{
			Enabled:  GetEnvAsBool("REDIS_ENABLED", false),
			Addr:     GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
			Channel:  GetEnv("REDIS_CHANNEL", "clinic:changes"),
		},
		Queue: QueueConfig{
			CounterBackend:    GetEnv("COUNTER_BACKEND", "sql"),
			Classifications:   GetEnv("CLASSIFICATIONS", ""),
			OpenAt:            GetEnv("OPEN_AT", "07:00"),
			CloseAt:           GetEnv("CLOSE_AT", "17:00"),
			Timezone:          GetEnv("TIMEZONE", "America/Sao_Paulo"),
			BroadcastDebounce: time.Duration(GetEnvAsInt("BROADCAST_DEBOUNCE_MS", 50)) * time.Millisecond,
		},
		JWT: JWTConfig{
			Secret: GetEnv("JWT_SECRET", ""),
			TTL:    time.Duration(GetEnvAsInt("JWT_TTL_HOURS", 24)) * time.Hour,
		},
	}
}
