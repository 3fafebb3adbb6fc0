package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = cfg.FeatureFlags.SQLitePath
		}
		return &cfg, nil
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPCART_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPCART_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SHOPCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPCART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	DSN    string `envconfig:"SHOPCART_DB_DSN"`
	Driver string `envconfig:"SHOPCART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SHOPCART_DB_HOST"`
	Port     int    `envconfig:"SHOPCART_DB_PORT" default:"5432"`
	User     string `envconfig:"SHOPCART_DB_USER"`
	Password string `envconfig:"SHOPCART_DB_PASSWORD"`
	Name     string `envconfig:"SHOPCART_DB_NAME"`
	SSLMode  string `envconfig:"SHOPCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPCART_REDIS_URL"`
	Address      string        `envconfig:"SHOPCART_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPCART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPCART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SHOPCART_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	UseSQLite          bool   `envconfig:"SHOPCART_USE_SQLITE" default:"false"`
	SQLitePath         string `envconfig:"SHOPCART_SQLITE_PATH" default:"shopcart.db"`
	AutoMigrate        bool   `envconfig:"SHOPCART_AUTO_MIGRATE" default:"false"`
	CartRequireAuth    bool   `envconfig:"SHOPCART_CART_REQUIRE_AUTH" default:"true"`
	IdempotencyEnabled bool   `envconfig:"SHOPCART_IDEMPOTENCY_ENABLED" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOPCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOPCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOPCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"SHOPCART_KAFKA_BROKERS" default:"localhost:9092"`
	OrdersTopic  string        `envconfig:"SHOPCART_KAFKA_ORDERS_TOPIC" default:"shopcart.orders"`
	WriteTimeout time.Duration `envconfig:"SHOPCART_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

// RateLimitConfig bounds mutating requests per owner. A zero limit disables the check.
type RateLimitConfig struct {
	CartWrites int           `envconfig:"SHOPCART_RATE_LIMIT_CART_WRITES" default:"120"`
	Checkouts  int           `envconfig:"SHOPCART_RATE_LIMIT_CHECKOUTS" default:"10"`
	Window     time.Duration `envconfig:"SHOPCART_RATE_LIMIT_WINDOW" default:"1m"`
}

// MaintenanceConfig drives the scheduled maintenance worker. A zero CartHoldTTL
// or OutboxRetention turns the matching job off.
type MaintenanceConfig struct {
	Interval        time.Duration `envconfig:"SHOPCART_MAINTENANCE_INTERVAL" default:"15m"`
	CartHoldTTL     time.Duration `envconfig:"SHOPCART_CART_HOLD_TTL" default:"72h"`
	OutboxRetention time.Duration `envconfig:"SHOPCART_OUTBOX_RETENTION" default:"720h"`
	BatchSize       int           `envconfig:"SHOPCART_MAINTENANCE_BATCH_SIZE" default:"100"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range legacyDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
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
