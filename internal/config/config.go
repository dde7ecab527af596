package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	MinIO    MinIOConfig
	Store    StoreConfig
	Local    LocalConfig
	Sync     SyncConfig
	JWT      JWTConfig
	Admin    AdminConfig
	CORS     CORSConfig
	Log      LogConfig
}

type AppConfig struct {
	Env  string
	Port string
	URL  string // public base URL that QR codes point to
}

type DatabaseConfig struct {
	Driver     string // postgres | sqlite
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

type MongoConfig struct {
	URI            string
	Database       string
	User           string
	Password       string
	ConnectTimeout time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StoreConfig selects the remote Persistence Adapter backends.
type StoreConfig struct {
	QRCodeBackend   string // memory | gorm | mongo | http
	FeedbackBackend string // memory | gorm | mongo | http | local
	FacadeURL       string
	FacadeAPIKey    string
	FacadeEnabled   bool
}

var (
	qrCodeBackends   = []string{"memory", "gorm", "mongo", "http"}
	feedbackBackends = []string{"memory", "gorm", "mongo", "http", "local"}
	localBackends    = []string{"file", "minio"}
)

// Validate rejects backend names the server cannot open. QR codes cannot
// use "local": their offline copy already owns that blob.
func (s StoreConfig) Validate() error {
	if !slices.Contains(qrCodeBackends, s.QRCodeBackend) {
		return fmt.Errorf("STORE_QRCODE_BACKEND must be one of %s, got %q", strings.Join(qrCodeBackends, ", "), s.QRCodeBackend)
	}
	if !slices.Contains(feedbackBackends, s.FeedbackBackend) {
		return fmt.Errorf("STORE_FEEDBACK_BACKEND must be one of %s, got %q", strings.Join(feedbackBackends, ", "), s.FeedbackBackend)
	}
	return nil
}

// LocalConfig describes where the offline copy of records is persisted.
type LocalConfig struct {
	Backend    string // file | minio
	Dir        string
	QuotaBytes int64
}

type SyncConfig struct {
	CacheTTL      time.Duration
	RetryAttempts int
	RetryBase     time.Duration
	RetryFactor   float64
	OpTimeout     time.Duration
	Interval      time.Duration
	PingInterval  time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
}

type AdminConfig struct {
	Username     string
	PasswordHash string
}

type CORSConfig struct {
	Origins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
			URL:  getEnv("APP_URL", "http://localhost:5173"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "feedback"),
			Password:   getEnv("DB_PASSWORD", ""),
			Name:       getEnv("DB_NAME", "feedbackApp"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "feedback.sqlite"),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGO_DATABASE", "feedbackApp"),
			User:           getEnv("MONGO_USER", ""),
			Password:       getEnv("MONGO_PASSWORD", ""),
			ConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 3*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "feedback-local"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Store: StoreConfig{
			QRCodeBackend:   getEnv("STORE_QRCODE_BACKEND", "gorm"),
			FeedbackBackend: getEnv("STORE_FEEDBACK_BACKEND", "gorm"),
			FacadeURL:       getEnv("STORE_FACADE_URL", "http://localhost:3000/api/store"),
			FacadeAPIKey:    getEnv("STORE_FACADE_API_KEY", ""),
			FacadeEnabled:   getEnvBool("STORE_FACADE_ENABLED", true),
		},
		Local: LocalConfig{
			Backend:    getEnv("LOCAL_BACKEND", "file"),
			Dir:        getEnv("LOCAL_DIR", "data"),
			QuotaBytes: getEnvInt64("LOCAL_QUOTA_BYTES", 5*1024*1024),
		},
		Sync: SyncConfig{
			CacheTTL:      getEnvDuration("CACHE_TTL", 3*time.Minute),
			RetryAttempts: int(getEnvInt64("RETRY_ATTEMPTS", 3)),
			RetryBase:     getEnvDuration("RETRY_BASE_DELAY", time.Second),
			RetryFactor:   2,
			OpTimeout:     getEnvDuration("STORE_OP_TIMEOUT", 15*time.Second),
			Interval:      getEnvDuration("SYNC_INTERVAL", 30*time.Second),
			PingInterval:  getEnvDuration("SYNC_PING_INTERVAL", 10*time.Second),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
			AccessExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 12*time.Hour),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		CORS: CORSConfig{
			Origins: func() []string {
				raw := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:5173"), ",")
				var normalized []string
				for _, o := range raw {
					o = strings.TrimSpace(o)
					o = strings.TrimSuffix(o, "/")
					if o != "" {
						normalized = append(normalized, o)
					}
				}
				return normalized
			}(),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if cfg.App.Env == "production" {
		if cfg.JWT.AccessSecret == "" {
			return nil, errors.New("JWT secret must be configured in production environment")
		}
		if cfg.Admin.PasswordHash == "" {
			return nil, errors.New("admin password hash must be configured in production environment")
		}
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if !slices.Contains(localBackends, cfg.Local.Backend) {
		return nil, fmt.Errorf("LOCAL_BACKEND must be one of %s, got %q", strings.Join(localBackends, ", "), cfg.Local.Backend)
	}
	if cfg.Sync.RetryAttempts < 1 {
		return nil, errors.New("RETRY_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
