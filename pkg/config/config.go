package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Push         PushConfig
	Queue        QueueConfig
	Delivery     DeliveryConfig
	AdminAPI     AdminAPIConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ALERTCAST_APP_ENV" required:"true"`
	Port         string `envconfig:"ALERTCAST_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ALERTCAST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ALERTCAST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"ALERTCAST_DB_DSN"`

	Host     string `envconfig:"ALERTCAST_DB_HOST"`
	Port     int    `envconfig:"ALERTCAST_DB_PORT" default:"5432"`
	User     string `envconfig:"ALERTCAST_DB_USER"`
	Password string `envconfig:"ALERTCAST_DB_PASSWORD"`
	Name     string `envconfig:"ALERTCAST_DB_NAME"`
	SSLMode  string `envconfig:"ALERTCAST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ALERTCAST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ALERTCAST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ALERTCAST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ALERTCAST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ALERTCAST_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"ALERTCAST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ALERTCAST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ALERTCAST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ALERTCAST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ALERTCAST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ALERTCAST_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LifecycleTopic string `envconfig:"ALERTCAST_PUBSUB_LIFECYCLE_TOPIC" default:"ac-alert-lifecycle"`
	Enabled        bool   `envconfig:"ALERTCAST_PUBSUB_ENABLED" default:"false"`
}

type PushConfig struct {
	ServerKey string        `envconfig:"ALERTCAST_PUSH_SERVER_KEY"`
	BaseURL   string        `envconfig:"ALERTCAST_PUSH_BASE_URL"`
	Timeout   time.Duration `envconfig:"ALERTCAST_PUSH_TIMEOUT" default:"10s"`
}

type QueueConfig struct {
	MaxAttempts    int           `envconfig:"ALERTCAST_QUEUE_MAX_ATTEMPTS" default:"5"`
	BackoffBase    time.Duration `envconfig:"ALERTCAST_QUEUE_BACKOFF_BASE" default:"3s"`
	BackoffCeiling time.Duration `envconfig:"ALERTCAST_QUEUE_BACKOFF_CEILING" default:"60s"`
	PollIntervalMS int           `envconfig:"ALERTCAST_QUEUE_POLL_MS" default:"500"`
	WorkerPoolSize int           `envconfig:"ALERTCAST_QUEUE_WORKER_POOL" default:"2"`
}

type DeliveryConfig struct {
	BatchSize     int           `envconfig:"ALERTCAST_DELIVERY_BATCH_SIZE" default:"500"`
	BatchDelay    time.Duration `envconfig:"ALERTCAST_DELIVERY_BATCH_DELAY" default:"50ms"`
	DedupeTTL     time.Duration `envconfig:"ALERTCAST_DELIVERY_DEDUPE_TTL" default:"72h"`
	EvictionLimit int           `envconfig:"ALERTCAST_DELIVERY_EVICTION_CONCURRENCY" default:"4"`
	InAppPerSec   int           `envconfig:"ALERTCAST_DELIVERY_INAPP_PER_SEC" default:"500"`
}

type AdminAPIConfig struct {
	Key string `envconfig:"ALERTCAST_ADMIN_API_KEY" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ALERTCAST_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		"ALERTCAST_DB_HOST": db.Host,
		"ALERTCAST_DB_USER": db.User,
		"ALERTCAST_DB_NAME": db.Name,
	}
	for _, key := range []string{"ALERTCAST_DB_HOST", "ALERTCAST_DB_USER", "ALERTCAST_DB_NAME"} {
		if parts[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either ALERTCAST_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
