package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int
	Database   DatabaseConfig
	Security   SecurityConfig
	Session    SessionConfig
	Redis      RedisConfig
	Storage    StorageConfig
	MQ         MQConfig
	SMTP       SMTPConfig
	Log        LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool

	// MaxOpenConns caps the pool; idle connections are a fifth of it.
	MaxOpenConns int
}

// SecurityConfig drives the password policy and brute-force protection.
type SecurityConfig struct {
	PasswordMinLength      int
	PasswordRequireDigits  bool
	PasswordRequireSpecial bool
	BcryptCost             int
	MaxFailedAttempts      int
	LockoutDuration        time.Duration
	AllowRegistration      bool
	// AllowedNetworks restricts /api to these CIDRs when non-empty.
	AllowedNetworks []string
	LoginRateLimit  float64
	LoginRateBurst  float64
}

type SessionConfig struct {
	Secret        string
	TTL           time.Duration
	PurgeInterval time.Duration
	CookieName    string
	CookieSecure  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects the object storage backend used for backups.
type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
	S3      S3Config
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type S3Config struct {
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// MQConfig selects the broker that carries interview events.
type MQConfig struct {
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadConfig() Config {
	env := getEnv("ENV", "prod")
	if env == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "reclutas"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "reclutas_db"),
		UseSSL:   getEnvBool("DB_SSL", false),

		MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
	}

	security := SecurityConfig{
		PasswordMinLength:      getEnvInt("PASSWORD_MIN_LENGTH", 8),
		PasswordRequireDigits:  getEnvBool("PASSWORD_REQUIRE_DIGITS", false),
		PasswordRequireSpecial: getEnvBool("PASSWORD_REQUIRE_SPECIAL", false),
		BcryptCost:             getEnvInt("BCRYPT_COST", 10),
		MaxFailedAttempts:      getEnvInt("MAX_FAILED_ATTEMPTS", 5),
		LockoutDuration:        getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),
		AllowRegistration:      getEnvBool("ALLOW_REGISTRATION", false),
		AllowedNetworks:        getEnvList("ALLOWED_NETWORKS"),
		LoginRateLimit:         getEnvFloat("LOGIN_RATE_LIMIT", 1),
		LoginRateBurst:         getEnvFloat("LOGIN_RATE_BURST", 10),
	}

	session := SessionConfig{
		Secret:        getEnv("SESSION_SECRET", ""),
		TTL:           getEnvDuration("SESSION_TTL", 30*time.Minute),
		PurgeInterval: getEnvDuration("SESSION_PURGE_INTERVAL", 10*time.Minute),
		CookieName:    getEnv("SESSION_COOKIE", "reclutas_session"),
		CookieSecure:  getEnvBool("SESSION_COOKIE_SECURE", env != "dev"),
	}

	storage := StorageConfig{
		Backend: getEnv("STORAGE_BACKEND", "minio"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "reclutas"),
			UseSSL:    getEnvBool("MINIO_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		S3: S3Config{
			Region:       getEnv("S3_REGION", "us-east-1"),
			Bucket:       getEnv("S3_BUCKET", ""),
			AccessKey:    getEnv("S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("S3_SECRET_KEY", ""),
			BaseEndpoint: getEnv("S3_ENDPOINT", ""),
		},
	}

	mq := MQConfig{
		Backend: getEnv("MQ_BACKEND", ""),
		Channel: getEnv("MQ_CHANNEL", "reclutas.interviews"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		Env:        env,
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Security:   security,
		Session:    session,
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Storage: storage,
		MQ:      mq,
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
