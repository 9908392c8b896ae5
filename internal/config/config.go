package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	App         AppConfig
	Store       StoreConfig
	DB          DBConfig
	Redis       RedisConfig
	MinIO       MinIOConfig
	Push        PushConfig
	Schedule    ScheduleConfig
	DeliveryLog DeliveryLogConfig
	JWT         JWTConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
}

type AppConfig struct {
	Env      string
	Port     string
	LogLevel string
}

// Store drivers
const (
	StoreDriverFile     = "file"
	StoreDriverMinIO    = "minio"
	StoreDriverPostgres = "postgres"
)

type StoreConfig struct {
	Driver    string
	FilePath  string
	ObjectKey string // object name when Driver is minio
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis host was configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type PushConfig struct {
	VAPIDPublicKey      string
	VAPIDPrivateKey     string
	Subject             string // mailto: or https: contact sent with VAPID
	TTL                 int    // seconds the push service keeps an undelivered message
	Timeout             time.Duration
	FirebaseCredentials string // path to service account JSON; empty disables FCM
}

type ScheduleConfig struct {
	SendAt          string // local wall-clock "HH:MM"
	DefaultTimezone string
	CronSpec        string
	Concurrency     int
}

// Delivery log drivers
const (
	DeliveryLogFile  = "file"
	DeliveryLogRedis = "redis"
	DeliveryLogNone  = "none"
)

type DeliveryLogConfig struct {
	Driver     string
	FilePath   string
	RedisKey   string
	MaxEntries int64
}

type JWTConfig struct {
	Secret string // empty disables operator auth on manual send routes
	Expiry time.Duration
}

type CORSConfig struct {
	Origins []string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading from environment variables")
	}

	return &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			Port:     getEnv("APP_PORT", "3001"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver:    getEnv("STORE_DRIVER", StoreDriverFile),
			FilePath:  getEnv("STORE_FILE_PATH", "data/subscriptions.json"),
			ObjectKey: getEnv("STORE_OBJECT_KEY", "subscriptions.json"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "memento"),
			Password: getEnv("DB_PASSWORD", "memento"),
			Name:     getEnv("DB_NAME", "memento"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "memento"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Push: PushConfig{
			VAPIDPublicKey:      getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey:     getEnv("VAPID_PRIVATE_KEY", ""),
			Subject:             getEnv("VAPID_SUBJECT", "mailto:admin@memento.local"),
			TTL:                 getEnvInt("PUSH_TTL", 3600),
			Timeout:             getEnvDuration("PUSH_TIMEOUT", 10*time.Second),
			FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Schedule: ScheduleConfig{
			SendAt:          getEnv("SEND_AT", "09:00"),
			DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "Europe/Paris"),
			CronSpec:        getEnv("SCHEDULE_CRON", "* * * * *"),
			Concurrency:     getEnvInt("SCHEDULE_CONCURRENCY", 8),
		},
		DeliveryLog: DeliveryLogConfig{
			Driver:     getEnv("DELIVERY_LOG_DRIVER", DeliveryLogFile),
			FilePath:   getEnv("DELIVERY_LOG_PATH", "data/deliveries.log"),
			RedisKey:   getEnv("DELIVERY_LOG_REDIS_KEY", "memento:deliveries"),
			MaxEntries: int64(getEnvInt("DELIVERY_LOG_MAX_ENTRIES", 10000)),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Expiry: getEnvDuration("JWT_EXPIRY", 30*24*time.Hour),
		},
		CORS: CORSConfig{
			Origins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:5173"), ","),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("MANUAL_SEND_RPS", 1),
			Burst: getEnvInt("MANUAL_SEND_BURST", 5),
		},
	}
}

// Validate checks the values the process cannot run without
func (c *Config) Validate() error {
	if _, err := ParseSendAt(c.Schedule.SendAt); err != nil {
		return err
	}
	switch c.Store.Driver {
	case StoreDriverFile, StoreDriverMinIO, StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.DeliveryLog.Driver {
	case DeliveryLogFile, DeliveryLogRedis, DeliveryLogNone:
	default:
		return fmt.Errorf("unknown DELIVERY_LOG_DRIVER %q", c.DeliveryLog.Driver)
	}
	if c.DeliveryLog.Driver == DeliveryLogRedis && !c.Redis.Enabled() {
		return fmt.Errorf("DELIVERY_LOG_DRIVER=redis requires REDIS_HOST")
	}
	if c.Schedule.Concurrency < 1 {
		return fmt.Errorf("SCHEDULE_CONCURRENCY must be positive, got %d", c.Schedule.Concurrency)
	}
	return nil
}

// ParseSendAt validates an "HH:MM" wall-clock time and returns it normalized
func ParseSendAt(s string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid SEND_AT %q: expected HH:MM", s)
	}
	return t.Format("15:04"), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return d
}
