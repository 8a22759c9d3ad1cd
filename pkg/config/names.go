package config

const EnvPrefix = "DAYBOOK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageBackendDB = "db"
	StorageBackendS3 = "s3"
)

const (
	ExtractorModeCommand = "command"
	ExtractorModeHTTP    = "http"
)

const (
	EnvAppEnv   = "DAYBOOK_APP_ENV"
	EnvPort     = "DAYBOOK_APP_PORT"
	EnvDBDSN    = "DAYBOOK_DB_DSN"
	EnvDBHost   = "DAYBOOK_DB_HOST"
	EnvDBUser   = "DAYBOOK_DB_USER"
	EnvDBName   = "DAYBOOK_DB_NAME"
	EnvRedisURL = "DAYBOOK_REDIS_URL"

	EnvJWTSecret = "DAYBOOK_JWT_SECRET"
	EnvJWTIssuer = "DAYBOOK_JWT_ISSUER"

	EnvStorageBackend = "DAYBOOK_STORAGE_BACKEND"
	EnvS3Endpoint     = "DAYBOOK_S3_ENDPOINT"
	EnvS3Bucket       = "DAYBOOK_S3_BUCKET"

	EnvTranscriptionStaleAfter   = "DAYBOOK_TRANSCRIPTION_STALE_AFTER"
	EnvTranscriptionExtractor    = "DAYBOOK_TRANSCRIPTION_EXTRACTOR"
	EnvTranscriptionExtractorCmd = "DAYBOOK_TRANSCRIPTION_EXTRACTOR_CMD"
	EnvTranscriptionExtractorURL = "DAYBOOK_TRANSCRIPTION_EXTRACTOR_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
