package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Environment selects the runtime profile.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvTest       Environment = "test"
	EnvProduction Environment = "production"
)

// localSecretKey is only ever used when APP_ENV=local.
const localSecretKey = "eluP5ZXzB3txkA2HanPOCO0nk6BGyR48ARvl341FGRGYtdUiBT1XRh4pJyQVK6NR"

const testSecretKey = "QoV1hvpVq5GcNHzj81RDnbwR8weYkyJlPooK3FNPEjGVJKOeiXELlGZsV66NItE5"

type Config struct {
	Env        Environment
	Debug      bool
	ServerPort int
	Log        LogConfig
	Database   DatabaseConfig
	Security   SecurityConfig
	Accounts   AccountsConfig
	Mail       MailConfig
	Cache      CacheConfig
	IoTDB      IoTDBConfig
	Archive    ArchiveConfig
	MQ         MQConfig
	TestUser   TestUserConfig
}

type appConfig struct {
	Env        string `envconfig:"APP_ENV" default:"production"`
	Debug      *bool  `envconfig:"DEBUG"`
	ServerPort int    `envconfig:"SERVER_PORT" default:"8080"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT"`
}

type DatabaseConfig struct {
	URL      string `envconfig:"DATABASE_URL"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"cosray"`
	Password string `envconfig:"DB_PASSWORD" default:"password"`
	DBName   string `envconfig:"DB_NAME" default:"cosray_db"`
	UseSSL   bool   `envconfig:"DB_SSL" default:"false"`
}

type SecurityConfig struct {
	SecretKey            string   `envconfig:"SECRET_KEY"`
	AllowedHosts         []string `envconfig:"ALLOWED_HOSTS"`
	CORSAllowAllOrigins  *bool    `envconfig:"CORS_ALLOW_ALL_ORIGINS"`
	CORSAllowedOrigins   []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	CSRFTrustedOrigins   []string `envconfig:"CSRF_TRUSTED_ORIGINS"`
}

type AccountsConfig struct {
	AllowRegistration    bool          `envconfig:"ACCOUNT_ALLOW_REGISTRATION" default:"true"`
	SessionTTL           time.Duration `envconfig:"SESSION_TTL" default:"336h"`
	AuthTokenTTL         time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"24h"`
	EmailVerificationTTL time.Duration `envconfig:"EMAIL_VERIFICATION_TTL" default:"72h"`
}

type MailConfig struct {
	Backend      string        `envconfig:"EMAIL_BACKEND"`
	Host         string        `envconfig:"EMAIL_HOST" default:"localhost"`
	Port         int           `envconfig:"EMAIL_PORT" default:"25"`
	User         string        `envconfig:"EMAIL_HOST_USER"`
	Password     string        `envconfig:"EMAIL_HOST_PASSWORD"`
	From         string        `envconfig:"DEFAULT_FROM_EMAIL" default:"CosRay-Backend <noreply@example.com>"`
	Timeout      time.Duration `envconfig:"EMAIL_TIMEOUT" default:"5s"`
	QueueChannel string        `envconfig:"EMAIL_QUEUE_CHANNEL" default:"mail.outbound"`
}

type CacheConfig struct {
	Backend  string `envconfig:"CACHE_BACKEND"`
	RedisURL string `envconfig:"REDIS_URL" default:"redis://redis:6379/0"`
}

type IoTDBConfig struct {
	Host                string   `envconfig:"IOTDB_HOST" default:"127.0.0.1"`
	RESTPort            int      `envconfig:"IOTDB_REST_PORT" default:"18080"`
	Username            string   `envconfig:"IOTDB_USERNAME" default:"root"`
	Password            string   `envconfig:"IOTDB_PASSWORD" default:"root"`
	ZoneID              string   `envconfig:"IOTDB_ZONE_ID" default:"UTC+8"`
	MaxRetry            int      `envconfig:"IOTDB_MAX_RETRY" default:"3"`
	PoolSize            int      `envconfig:"IOTDB_POOL_SIZE" default:"5"`
	PoolWaitTimeoutMs   int      `envconfig:"IOTDB_POOL_WAIT_TIMEOUT_MS" default:"3000"`
	UseSSL              bool     `envconfig:"IOTDB_USE_SSL" default:"false"`
	CACerts             string   `envconfig:"IOTDB_CA_CERTS"`
	NodeURLs            []string `envconfig:"IOTDB_NODE_URLS"`
	EnableRedirection   bool     `envconfig:"IOTDB_ENABLE_REDIRECTION" default:"true"`
	EnableCompression   bool     `envconfig:"IOTDB_ENABLE_COMPRESSION" default:"false"`
	ConnectionTimeoutMs int      `envconfig:"IOTDB_CONNECTION_TIMEOUT_MS" default:"0"`
	RootPath            string   `envconfig:"IOTDB_ROOT_PATH" default:"root.cosray"`
	SQLDialect          string   `envconfig:"IOTDB_SQL_DIALECT" default:"tree"`
	Database            string   `envconfig:"IOTDB_DATABASE"`
	TableNamePrefix     string   `envconfig:"IOTDB_TABLE_NAME_PREFIX"`
}

type ArchiveConfig struct {
	Backend string `envconfig:"ARCHIVE_BACKEND" default:"none"`
	Minio   MinioConfig
	GCS     GCSConfig
	S3      S3Config
}

type MinioConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"mu-packets"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type GCSConfig struct {
	Bucket          string `envconfig:"GCS_BUCKET"`
	ProjectID       string `envconfig:"GCS_PROJECT_ID"`
	CredentialsFile string `envconfig:"GCS_CREDENTIALS_FILE"`
}

type S3Config struct {
	Bucket          string `envconfig:"S3_BUCKET"`
	Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"S3_ENDPOINT"`
	AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
}

type MQConfig struct {
	Backend             string `envconfig:"MQ_BACKEND" default:"none"`
	PacketEventsChannel string `envconfig:"PACKET_EVENTS_CHANNEL" default:"mu-packets.ingested"`
	RabbitMQ            RabbitMQConfig
	PubSub              PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `envconfig:"RABBITMQ_URL"`
	PrefetchCount   int    `envconfig:"RABBITMQ_PREFETCH_COUNT" default:"0"`
	QueueDurable    bool   `envconfig:"RABBITMQ_QUEUE_DURABLE" default:"true"`
	QueueAutoDelete bool   `envconfig:"RABBITMQ_QUEUE_AUTO_DELETE" default:"false"`
}

type PubSubConfig struct {
	ProjectID          string `envconfig:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `envconfig:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `envconfig:"PUBSUB_SUBSCRIPTION_SUFFIX" default:"-sub"`
}

// TestUserConfig mirrors the LOCAL_DEV_TEST_USER_* variables.
type TestUserConfig struct {
	Enabled     bool   `envconfig:"LOCAL_DEV_TEST_USER_ENABLED" default:"true"`
	Username    string `envconfig:"LOCAL_DEV_TEST_USER_USERNAME" default:"test"`
	Password    string `envconfig:"LOCAL_DEV_TEST_USER_PASSWORD" default:"LocalPass123!"`
	Email       string `envconfig:"LOCAL_DEV_TEST_USER_EMAIL" default:"localtester@example.com"`
	Name        string `envconfig:"LOCAL_DEV_TEST_USER_NAME"`
	IsStaff     bool   `envconfig:"LOCAL_DEV_TEST_USER_IS_STAFF" default:"false"`
	IsSuperuser bool   `envconfig:"LOCAL_DEV_TEST_USER_IS_SUPERUSER" default:"false"`
}

// LoadConfig reads the process environment. In the local profile a .env file
// in the working directory is loaded first; variables already set win.
func LoadConfig() (Config, error) {
	if strings.EqualFold(os.Getenv("APP_ENV"), string(EnvLocal)) {
		_ = godotenv.Load()
	}

	var app appConfig
	if err := envconfig.Process("", &app); err != nil {
		return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
	}

	cfg := Config{
		Env:        Environment(strings.ToLower(strings.TrimSpace(app.Env))),
		ServerPort: app.ServerPort,
	}

	sections := []any{
		&cfg.Log,
		&cfg.Database,
		&cfg.Security,
		&cfg.Accounts,
		&cfg.Mail,
		&cfg.Cache,
		&cfg.IoTDB,
		&cfg.Archive,
		&cfg.Archive.Minio,
		&cfg.Archive.GCS,
		&cfg.Archive.S3,
		&cfg.MQ,
		&cfg.MQ.RabbitMQ,
		&cfg.MQ.PubSub,
		&cfg.TestUser,
	}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
		}
	}

	if app.Debug != nil {
		cfg.Debug = *app.Debug
	} else {
		cfg.Debug = cfg.Env == EnvLocal
	}

	cfg.applyProfileDefaults()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyProfileDefaults fills values whose default depends on APP_ENV.
func (c *Config) applyProfileDefaults() {
	local := c.Env == EnvLocal

	if c.Log.Format == "" {
		c.Log.Format = "json"
		if local {
			c.Log.Format = "console"
		}
	}

	if c.Security.SecretKey == "" {
		switch c.Env {
		case EnvLocal:
			c.Security.SecretKey = localSecretKey
		case EnvTest:
			c.Security.SecretKey = testSecretKey
		}
	}

	if len(c.Security.AllowedHosts) == 0 {
		if local {
			c.Security.AllowedHosts = []string{"localhost", "0.0.0.0", "127.0.0.1", "10.0.2.2"}
		} else if c.Env == EnvTest {
			c.Security.AllowedHosts = []string{"*"}
		}
	}

	if c.Security.CORSAllowAllOrigins == nil {
		allowAll := local || c.Env == EnvTest
		c.Security.CORSAllowAllOrigins = &allowAll
	}

	if local {
		c.Security.CSRFTrustedOrigins = append(c.Security.CSRFTrustedOrigins,
			"http://localhost",
			"http://127.0.0.1",
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		)
	}

	if c.Mail.Backend == "" {
		switch c.Env {
		case EnvLocal:
			c.Mail.Backend = "console"
		case EnvTest:
			c.Mail.Backend = "locmem"
		default:
			c.Mail.Backend = "smtp"
		}
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "redis"
		if local || c.Env == EnvTest {
			c.Cache.Backend = "locmem"
		}
	}
}

func (c *Config) normalize() {
	c.Security.AllowedHosts = cleanList(c.Security.AllowedHosts)
	c.Security.CORSAllowedOrigins = cleanList(c.Security.CORSAllowedOrigins)
	c.Security.CSRFTrustedOrigins = cleanList(c.Security.CSRFTrustedOrigins)
	c.IoTDB.NodeURLs = cleanList(c.IoTDB.NodeURLs)
	c.IoTDB.SQLDialect = strings.ToLower(strings.TrimSpace(c.IoTDB.SQLDialect))
	if c.IoTDB.SQLDialect == "" {
		c.IoTDB.SQLDialect = "tree"
	}
	c.IoTDB.CACerts = strings.TrimSpace(c.IoTDB.CACerts)
	c.IoTDB.Database = strings.TrimSpace(c.IoTDB.Database)
	c.IoTDB.TableNamePrefix = strings.TrimSpace(c.IoTDB.TableNamePrefix)
	c.Mail.Backend = strings.ToLower(strings.TrimSpace(c.Mail.Backend))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	c.MQ.Backend = strings.ToLower(strings.TrimSpace(c.MQ.Backend))
}

// Validate reports configuration that cannot be served.
func (c Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("unsupported APP_ENV: %q", c.Env)
	}
	if strings.TrimSpace(c.Security.SecretKey) == "" {
		return errors.New("SECRET_KEY is required")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort)
	}
	if !oneOf(c.Mail.Backend, "console", "locmem", "smtp", "queue") {
		return fmt.Errorf("unsupported EMAIL_BACKEND: %q", c.Mail.Backend)
	}
	if c.Mail.Backend == "queue" && c.MQ.Backend == "none" {
		return errors.New("EMAIL_BACKEND=queue requires MQ_BACKEND")
	}
	if !oneOf(c.Cache.Backend, "locmem", "redis") {
		return fmt.Errorf("unsupported CACHE_BACKEND: %q", c.Cache.Backend)
	}
	if !oneOf(c.Archive.Backend, "none", "minio", "gcs", "s3") {
		return fmt.Errorf("unsupported ARCHIVE_BACKEND: %q", c.Archive.Backend)
	}
	if !oneOf(c.MQ.Backend, "none", "rabbitmq", "pubsub") {
		return fmt.Errorf("unsupported MQ_BACKEND: %q", c.MQ.Backend)
	}
	if !oneOf(c.IoTDB.SQLDialect, "tree", "table") {
		return fmt.Errorf("unsupported IOTDB_SQL_DIALECT: %q", c.IoTDB.SQLDialect)
	}
	return nil
}

// IsLocal reports whether the local development profile is active.
func (c Config) IsLocal() bool {
	return c.Env == EnvLocal
}

// CORSAllowAll reports whether every origin may call the API.
func (c Config) CORSAllowAll() bool {
	return c.Security.CORSAllowAllOrigins != nil && *c.Security.CORSAllowAllOrigins
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func oneOf(value string, options ...string) bool {
	for _, option := range options {
		if value == option {
			return true
		}
	}
	return false
}
