package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Storage       StorageConfig
	S3            S3Config
	Media         MediaConfig
	Transcription TranscriptionConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(cfg.S3); err != nil {
		return nil, err
	}
	if err := cfg.Transcription.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DAYBOOK_APP_ENV" required:"true"`
	Port         string `envconfig:"DAYBOOK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DAYBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DAYBOOK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DAYBOOK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DAYBOOK_DB_DSN"`
	Driver string `envconfig:"DAYBOOK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DAYBOOK_DB_HOST"`
	LegacyPort     int    `envconfig:"DAYBOOK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DAYBOOK_DB_USER"`
	LegacyPassword string `envconfig:"DAYBOOK_DB_PASSWORD"`
	LegacyName     string `envconfig:"DAYBOOK_DB_NAME"`
	LegacySSLMode  string `envconfig:"DAYBOOK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DAYBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DAYBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DAYBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DAYBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DAYBOOK_REDIS_URL"`
	Address      string        `envconfig:"DAYBOOK_REDIS_ADDR"`
	Password     string        `envconfig:"DAYBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"DAYBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DAYBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DAYBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DAYBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DAYBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DAYBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DAYBOOK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DAYBOOK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DAYBOOK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DAYBOOK_AUTO_MIGRATE" default:"false"`
}

type StorageConfig struct {
	Backend   string `envconfig:"DAYBOOK_STORAGE_BACKEND" default:"db"`
	ChunkSize int    `envconfig:"DAYBOOK_STORAGE_CHUNK_SIZE" default:"261120"`
}

// UsesObjectStore reports whether blobs live in S3-compatible storage.
func (s StorageConfig) UsesObjectStore() bool {
	return strings.EqualFold(strings.TrimSpace(s.Backend), StorageBackendS3)
}

func (s StorageConfig) validate(s3 S3Config) error {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case StorageBackendDB:
		return nil
	case StorageBackendS3:
		if s3.Endpoint == "" || s3.Bucket == "" {
			return fmt.Errorf("%s and %s are required for the s3 storage backend", EnvS3Endpoint, EnvS3Bucket)
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage backend %q", s.Backend)
	}
}

type S3Config struct {
	Endpoint  string `envconfig:"DAYBOOK_S3_ENDPOINT"`
	AccessKey string `envconfig:"DAYBOOK_S3_ACCESS_KEY"`
	SecretKey string `envconfig:"DAYBOOK_S3_SECRET_KEY"`
	Bucket    string `envconfig:"DAYBOOK_S3_BUCKET"`
	Region    string `envconfig:"DAYBOOK_S3_REGION"`
	UseSSL    bool   `envconfig:"DAYBOOK_S3_USE_SSL" default:"true"`
}

type MediaConfig struct {
	MaxUploadMB    int   `envconfig:"DAYBOOK_MAX_UPLOAD_MB" default:"25"`
	MaxRecordingMS int64 `envconfig:"DAYBOOK_MAX_RECORDING_MS" default:"600000"`
}

// MaxUploadBytes converts the configured upload cap to bytes.
func (m MediaConfig) MaxUploadBytes() int64 {
	if m.MaxUploadMB <= 0 {
		return 0
	}
	return int64(m.MaxUploadMB) * 1024 * 1024
}

type TranscriptionConfig struct {
	StaleAfter       time.Duration `envconfig:"DAYBOOK_TRANSCRIPTION_STALE_AFTER" default:"30m"`
	FetchTimeout     time.Duration `envconfig:"DAYBOOK_TRANSCRIPTION_FETCH_TIMEOUT" default:"1m"`
	NormalizeTimeout time.Duration `envconfig:"DAYBOOK_TRANSCRIPTION_NORMALIZE_TIMEOUT" default:"2m"`
	ExtractTimeout   time.Duration `envconfig:"DAYBOOK_TRANSCRIPTION_EXTRACT_TIMEOUT" default:"5m"`
	FFmpegPath       string        `envconfig:"DAYBOOK_TRANSCRIPTION_FFMPEG_PATH" default:"ffmpeg"`
	SampleRate       int           `envconfig:"DAYBOOK_TRANSCRIPTION_SAMPLE_RATE" default:"16000"`
	ExtractorMode    string        `envconfig:"DAYBOOK_TRANSCRIPTION_EXTRACTOR" default:"command"`
	ExtractorCommand string        `envconfig:"DAYBOOK_TRANSCRIPTION_EXTRACTOR_CMD" default:"python3 -m phonemize --stdin"`
	ExtractorURL     string        `envconfig:"DAYBOOK_TRANSCRIPTION_EXTRACTOR_URL"`
	ExtractorToken   string        `envconfig:"DAYBOOK_TRANSCRIPTION_EXTRACTOR_TOKEN"`
	TempDir          string        `envconfig:"DAYBOOK_TRANSCRIPTION_TEMP_DIR"`
	TempRetention    time.Duration `envconfig:"DAYBOOK_TRANSCRIPTION_TEMP_RETENTION" default:"6h"`
	RecoverOnStart   bool          `envconfig:"DAYBOOK_TRANSCRIPTION_RECOVER_ON_START" default:"true"`
}

// UsesHTTPExtractor reports whether extraction is delegated to a remote service.
func (t TranscriptionConfig) UsesHTTPExtractor() bool {
	return strings.EqualFold(strings.TrimSpace(t.ExtractorMode), ExtractorModeHTTP)
}

func (t TranscriptionConfig) validate() error {
	if t.StaleAfter <= 0 {
		return fmt.Errorf("%s must be positive", EnvTranscriptionStaleAfter)
	}
	switch strings.ToLower(strings.TrimSpace(t.ExtractorMode)) {
	case ExtractorModeCommand:
		if strings.TrimSpace(t.ExtractorCommand) == "" {
			return fmt.Errorf("%s is required for the command extractor", EnvTranscriptionExtractorCmd)
		}
	case ExtractorModeHTTP:
		if strings.TrimSpace(t.ExtractorURL) == "" {
			return fmt.Errorf("%s is required for the http extractor", EnvTranscriptionExtractorURL)
		}
	default:
		return fmt.Errorf("unsupported extractor mode %q", t.ExtractorMode)
	}
	return nil
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"DAYBOOK_CRON_INTERVAL" default:"1h"`
	OrphanBlobGrace time.Duration `envconfig:"DAYBOOK_CRON_ORPHAN_BLOB_GRACE" default:"24h"`
	OrphanBatchSize int           `envconfig:"DAYBOOK_CRON_ORPHAN_BATCH_SIZE" default:"200"`
	LockTTL         time.Duration `envconfig:"DAYBOOK_CRON_LOCK_TTL" default:"2h"`
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
