package config

// EnvPrefix is handed to envconfig; field tags carry the full variable name,
// which envconfig falls back to after the prefixed key.
const EnvPrefix = "SHOPCART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "SHOPCART_APP_ENV"
	EnvPort     = "SHOPCART_APP_PORT"
	EnvLogLevel = "SHOPCART_LOG_LEVEL"

	EnvDBDSN  = "SHOPCART_DB_DSN"
	EnvDBHost = "SHOPCART_DB_HOST"
	EnvDBUser = "SHOPCART_DB_USER"
	EnvDBName = "SHOPCART_DB_NAME"

	EnvRedisURL = "SHOPCART_REDIS_URL"

	EnvJWTSecret  = "SHOPCART_JWT_SECRET"
	EnvJWTIssuer  = "SHOPCART_JWT_ISSUER"
	EnvJWTExpMins = "SHOPCART_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite       = "SHOPCART_USE_SQLITE"
	EnvCartRequireAuth = "SHOPCART_CART_REQUIRE_AUTH"

	EnvKafkaBrokers = "SHOPCART_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
