package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	Stock        StockConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Reconcile    ReconcileConfig
	RateLimit    AuthRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every setting that envconfig accepts but the services cannot run with.
func (c *Config) Validate() error {
	var errs error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("stock max restock batch", c.Stock.MaxRestockBatch)
	positive("stock max delete batch", c.Stock.MaxDeleteBatch)
	positive("stock max assign quantity", c.Stock.MaxAssignQuantity)
	positive("outbox batch size", c.Outbox.BatchSize)
	positive("outbox max attempts", c.Outbox.MaxAttempts)
	positive("outbox retention days", c.Outbox.RetentionDays)
	positive("reconcile page size", c.Reconcile.PageSize)
	positive("login ip limit", c.RateLimit.LoginIPLimit)
	positive("login email limit", c.RateLimit.LoginEmailLimit)

	if c.Outbox.DLQRetentionDays < c.Outbox.RetentionDays {
		errs = multierr.Append(errs, fmt.Errorf("dead letters (%dd) must outlive published events (%dd)", c.Outbox.DLQRetentionDays, c.Outbox.RetentionDays))
	}
	if c.Reconcile.Interval <= 0 || c.Outbox.RetentionEvery <= 0 {
		errs = multierr.Append(errs, errors.New("cron intervals must be positive"))
	}
	access := time.Duration(c.JWT.ExpirationMinutes) * time.Minute
	if c.JWT.RefreshTokenTTL() <= access {
		errs = multierr.Append(errs, fmt.Errorf("refresh token ttl must exceed access token ttl (%s)", access))
	}
	return errs
}

type AppConfig struct {
	Env          string        `envconfig:"CODESHOP_APP_ENV" required:"true"`
	Port         string        `envconfig:"CODESHOP_APP_PORT" required:"true"`
	LogLevel     string        `envconfig:"CODESHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool          `envconfig:"CODESHOP_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string      `envconfig:"CODESHOP_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownWait time.Duration `envconfig:"CODESHOP_SHUTDOWN_WAIT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "prod")
}

type ServiceConfig struct {
	Kind string `envconfig:"CODESHOP_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"CODESHOP_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"CODESHOP_DB_DSN"`
	Driver string `envconfig:"CODESHOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CODESHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"CODESHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CODESHOP_DB_USER"`
	LegacyPassword string `envconfig:"CODESHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"CODESHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"CODESHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CODESHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CODESHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CODESHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CODESHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CODESHOP_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CODESHOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CODESHOP_REDIS_ADDR"`
	Password     string        `envconfig:"CODESHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"CODESHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CODESHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CODESHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CODESHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CODESHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CODESHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CODESHOP_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CODESHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"CODESHOP_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"CODESHOP_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CODESHOP_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CODESHOP_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CODESHOP_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CODESHOP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CODESHOP_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CODESHOP_AUTO_MIGRATE" default:"false"`
}

// StockConfig bounds the stock catalog write paths.
type StockConfig struct {
	MaxRestockBatch   int           `envconfig:"CODESHOP_STOCK_MAX_RESTOCK_BATCH" default:"5000"`
	MaxDeleteBatch    int           `envconfig:"CODESHOP_STOCK_MAX_DELETE_BATCH" default:"1000"`
	MaxAssignQuantity int           `envconfig:"CODESHOP_STOCK_MAX_ASSIGN_QUANTITY" default:"100"`
	AvailabilityTTL   time.Duration `envconfig:"CODESHOP_STOCK_AVAILABILITY_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"CODESHOP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	StockTopic string `envconfig:"CODESHOP_PUBSUB_STOCK_TOPIC" default:"codeshop-stock-events"`
	// Batching knobs applied to every publisher handle.
	PublishDelay   time.Duration `envconfig:"CODESHOP_PUBSUB_PUBLISH_DELAY" default:"10ms"`
	PublishMaxMsgs int           `envconfig:"CODESHOP_PUBSUB_PUBLISH_MAX_MESSAGES" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CODESHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CODESHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CODESHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Published rows and dead letters are pruned by the cron worker.
	RetentionDays    int           `envconfig:"CODESHOP_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int           `envconfig:"CODESHOP_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
	RetentionEvery   time.Duration `envconfig:"CODESHOP_OUTBOX_RETENTION_EVERY" default:"24h"`
}

type ReconcileConfig struct {
	Interval time.Duration `envconfig:"CODESHOP_RECONCILE_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"CODESHOP_RECONCILE_LOCK_TTL" default:"10m"`
	PageSize int           `envconfig:"CODESHOP_RECONCILE_PAGE_SIZE" default:"200"`
}

// AuthRateLimitConfig throttles login attempts per client IP and per e-mail.
type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"CODESHOP_LOGIN_RATE_WINDOW" default:"1m"`
	LoginIPLimit    int           `envconfig:"CODESHOP_LOGIN_RATE_IP_LIMIT" default:"20"`
	LoginEmailLimit int           `envconfig:"CODESHOP_LOGIN_RATE_EMAIL_LIMIT" default:"5"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
