package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvFileVar names an optional env file whose values apply to keys the
// process environment does not set.
const EnvFileVar = "MENTORCHAT_ENV_FILE"

type Config struct {
	Port            string
	Environment     string
	DatabasePath    string
	JWTSecret       string
	CORSOrigins     string
	MaxUploadSize   int64
	FileStoragePath string
	PublicBaseURL   string
	LogLevel        string

	ChatRateLimit     int64
	ChatRateWindow    time.Duration
	LoginRateLimit    int64
	RegisterRateLimit int64
	RateLimitRedisURL string

	AWSRegion      string
	S3Bucket       string
	S3PublicURL    string
	AMQPURL        string
	AMQPQueue      string
	VAPIDPublic    string
	VAPIDPrivate   string
	PushSubscriber string
}

const defaultMaxUploadSize = 25 * 1024 * 1024

func Load() *Config {
	file := map[string]string{}
	if path, ok := os.LookupEnv(EnvFileVar); ok && path != "" {
		if values, err := godotenv.Read(path); err == nil {
			file = values
		}
	}
	get := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		if value, exists := file[key]; exists {
			return value
		}
		return defaultValue
	}

	return &Config{
		Port:              get("PORT", "8080"),
		Environment:       get("ENVIRONMENT", "development"),
		DatabasePath:      get("DATABASE_PATH", "./data/mentorchat.db"),
		JWTSecret:         get("JWT_SECRET", "your-secret-key-change-in-production"),
		CORSOrigins:       get("CORS_ORIGINS", "*"),
		MaxUploadSize:     parseInt64(get("MAX_UPLOAD_SIZE", ""), defaultMaxUploadSize),
		FileStoragePath:   get("FILE_STORAGE_PATH", "./data/uploads"),
		PublicBaseURL:     get("PUBLIC_BASE_URL", ""),
		LogLevel:          get("LOG_LEVEL", "info"),
		ChatRateLimit:     parseInt64(get("CHAT_RATE_LIMIT", ""), 40),
		ChatRateWindow:    parseDuration(get("CHAT_RATE_WINDOW", ""), time.Minute),
		LoginRateLimit:    parseInt64(get("LOGIN_RATE_LIMIT", ""), 5),
		RegisterRateLimit: parseInt64(get("REGISTER_RATE_LIMIT", ""), 2),
		RateLimitRedisURL: get("RATE_LIMIT_REDIS_URL", ""),
		AWSRegion:         get("AWS_REGION", ""),
		S3Bucket:          get("AWS_S3_BUCKET", ""),
		S3PublicURL:       get("AWS_S3_PUBLIC_URL", ""),
		AMQPURL:           get("AMQP_URL", ""),
		AMQPQueue:         get("AMQP_QUEUE", "chat.messages"),
		VAPIDPublic:       get("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivate:      get("VAPID_PRIVATE_KEY", ""),
		PushSubscriber:    get("PUSH_SUBSCRIBER", "mailto:push@mentorchat.local"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseInt64(s string, fallback int64) int64 {
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	val, err := time.ParseDuration(s)
	if err != nil || val <= 0 {
		return fallback
	}
	return val
}
