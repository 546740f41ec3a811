package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for the service. It is constructed once
// at startup and passed by reference; nothing mutates it afterwards.
type Config struct {
	Environment string

	Server        ServerConfig
	Scylla        ScyllaConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	JWT           JWTConfig
	Session       SessionConfig
	OTP           OTPConfig
	Cookie        CookieConfig
	SMTP          SMTPConfig
	OAuth         OAuthConfig
	RateLimit     RateLimitConfig
	Bucketing     BucketingConfig
	Hashing       HashingConfig
	Logging       LoggingConfig
	Company       CompanyConfig
	Auth          AuthConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers    []string
	EventTopic string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	EventIdx string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

type SessionConfig struct {
	MaxPerUser    int
	TTL           time.Duration
	SweepInterval time.Duration
}

type OTPConfig struct {
	TTL        time.Duration
	MaxResends int // extra sends allowed after the initial one
	Digits     int
}

type CookieConfig struct {
	RefreshName    string
	OTPSessionName string
	Domain         string
	Path           string
	Secure         bool
	SameSite       string // "lax", "strict" or "none"
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type OAuthConfig struct {
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleCallbackURL   string
	FacebookAppID       string
	FacebookAppSecret   string
	FacebookCallbackURL string
	EnableGoogleLogin   bool
	EnableFacebookLogin bool
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type HashingConfig struct {
	BcryptCost int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type CompanyConfig struct {
	Name    string
	Address string
}

type AuthConfig struct {
	// RequireVerification gates login on the account's verified flag. When
	// off, self-registered accounts are created verified.
	RequireVerification bool
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			AutoCertDir:  getEnv("SERVER_AUTO_CERT_DIR", "/var/lib/dauth/autocert"),
			Domain:       getEnv("SERVER_DOMAIN", ""),
			Email:        getEnv("SERVER_ACME_EMAIL", ""),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
		},
		Scylla: ScyllaConfig{
			Nodes:    splitList(getEnv("SCYLLA_NODES", "127.0.0.1:9042")),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "dauth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(getEnv("KAFKA_BROKERS", "127.0.0.1:9092")),
			EventTopic: getEnv("KAFKA_EVENT_TOPIC", "auth-events"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "127.0.0.1:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "dauth"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      getEnv("ELASTICSEARCH_URL", "http://127.0.0.1:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			EventIdx: getEnv("ELASTICSEARCH_EVENT_INDEX", "auth-events"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "us-east-1"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			AccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:     getEnv("JWT_ISSUER", "dauth-service"),
		},
		Session: SessionConfig{
			MaxPerUser:    getEnvInt("SESSION_MAX_PER_USER", 10),
			TTL:           getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		},
		OTP: OTPConfig{
			TTL:        getEnvDuration("OTP_TTL", 10*time.Minute),
			MaxResends: getEnvInt("OTP_MAX_RESENDS", 2),
			Digits:     getEnvInt("OTP_DIGITS", 6),
		},
		Cookie: CookieConfig{
			RefreshName:    getEnv("COOKIE_REFRESH_NAME", "refreshToken"),
			OTPSessionName: getEnv("COOKIE_OTP_SESSION_NAME", "forgetPassSessionId"),
			Domain:         getEnv("COOKIE_DOMAIN", ""),
			Path:           getEnv("COOKIE_PATH", "/"),
			Secure:         getEnvBool("COOKIE_SECURE", true),
			SameSite:       getEnv("COOKIE_SAMESITE", "lax"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		OAuth: OAuthConfig{
			GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
			GoogleCallbackURL:   getEnv("GOOGLE_CALLBACK_URL", "/auth/google/callback"),
			FacebookAppID:       getEnv("FACEBOOK_APP_ID", ""),
			FacebookAppSecret:   getEnv("FACEBOOK_APP_SECRET", ""),
			FacebookCallbackURL: getEnv("FACEBOOK_CALLBACK_URL", "/auth/facebook/callback"),
			EnableGoogleLogin:   getEnvBool("ENABLE_GOOGLE_LOGIN", false),
			EnableFacebookLogin: getEnvBool("ENABLE_FACEBOOK_LOGIN", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("USER_BUCKETS", 64),
			EventBuckets: getEnvInt("EVENT_BUCKETS", 16),
		},
		Hashing: HashingConfig{
			BcryptCost: getEnvInt("BCRYPT_COST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Company: CompanyConfig{
			Name:    getEnv("COMPANY_NAME", "dAuth"),
			Address: getEnv("COMPANY_ADDRESS", ""),
		},
		Auth: AuthConfig{
			RequireVerification: getEnvBool("AUTH_REQUIRE_VERIFICATION", false),
		},
	}

	return cfg
}

// Validate rejects configurations the service cannot safely start with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Hashing.BcryptCost < 10 {
		return fmt.Errorf("BCRYPT_COST must be at least 10")
	}
	if c.Session.MaxPerUser < 1 {
		return fmt.Errorf("SESSION_MAX_PER_USER must be positive")
	}
	if c.OAuth.EnableGoogleLogin && (c.OAuth.GoogleClientID == "" || c.OAuth.GoogleClientSecret == "") {
		return fmt.Errorf("google login is enabled but google credentials are missing")
	}
	if c.OAuth.EnableFacebookLogin && (c.OAuth.FacebookAppID == "" || c.OAuth.FacebookAppSecret == "") {
		return fmt.Errorf("facebook login is enabled but facebook credentials are missing")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
