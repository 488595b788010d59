package config

// EnvPrefix is passed to envconfig. Tagged fields fall back to the bare tag name.
const EnvPrefix = "CODESHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv                 = "CODESHOP_APP_ENV"
	EnvPort                   = "CODESHOP_APP_PORT"
	EnvLogLevel               = "CODESHOP_LOG_LEVEL"
	EnvDBDSN                  = "CODESHOP_DB_DSN"
	EnvDBHost                 = "CODESHOP_DB_HOST"
	EnvDBPort                 = "CODESHOP_DB_PORT"
	EnvDBUser                 = "CODESHOP_DB_USER"
	EnvDBPassword             = "CODESHOP_DB_PASSWORD"
	EnvDBName                 = "CODESHOP_DB_NAME"
	EnvRedisURL               = "CODESHOP_REDIS_URL"
	EnvJWTSecret              = "CODESHOP_JWT_SECRET"
	EnvJWTIssuer              = "CODESHOP_JWT_ISSUER"
	EnvJWTExpMins             = "CODESHOP_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "CODESHOP_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "CODESHOP_GCP_PROJECT_ID"
	EnvPubSubStockTopic       = "CODESHOP_PUBSUB_STOCK_TOPIC"
	EnvStockMaxRestockBatch   = "CODESHOP_STOCK_MAX_RESTOCK_BATCH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
