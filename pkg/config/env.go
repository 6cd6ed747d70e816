package config

// EnvPrefix is handed to envconfig; every variable below carries it already.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOCKROOM_APP_ENV"
	EnvPort     = "STOCKROOM_APP_PORT"
	EnvDBDSN    = "STOCKROOM_DB_DSN"
	EnvDBHost   = "STOCKROOM_DB_HOST"
	EnvDBUser   = "STOCKROOM_DB_USER"
	EnvDBName   = "STOCKROOM_DB_NAME"
	EnvRedisURL = "STOCKROOM_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
