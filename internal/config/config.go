package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Translation TranslationConfig `mapstructure:"translation"`
	Mail        MailConfig        `mapstructure:"mail"`
	Cookie      CookieConfig      `mapstructure:"cookie"`
	Approval    ApprovalConfig    `mapstructure:"approval"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TranslationConfig Azure / DeepL provider settings
type TranslationConfig struct {
	AzureKey        string `mapstructure:"azure_key"`
	AzureRegion     string `mapstructure:"azure_region"`
	AzureEndpoint   string `mapstructure:"azure_endpoint"`
	DeepLKey        string `mapstructure:"deepl_key"`
	DeepLURL        string `mapstructure:"deepl_url"`
	CacheTTLMS      int64  `mapstructure:"cache_ttl_ms"`
	CacheMaxEntries int    `mapstructure:"cache_max_entries"`
	HTTPTimeoutMS   int64  `mapstructure:"http_timeout_ms"`
	RateLimit       string `mapstructure:"rate_limit"`
}

// CacheTTL zero or negative disables caching
func (t TranslationConfig) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLMS) * time.Millisecond
}

func (t TranslationConfig) HTTPTimeout() time.Duration {
	if t.HTTPTimeoutMS <= 0 {
		return 8 * time.Second
	}
	return time.Duration(t.HTTPTimeoutMS) * time.Millisecond
}

type MailConfig struct {
	GmailUser        string `mapstructure:"gmail_user"`
	GmailAppPassword string `mapstructure:"gmail_app_password"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
}

// Enabled both credentials present
func (m MailConfig) Enabled() bool {
	return m.GmailUser != "" && m.GmailAppPassword != ""
}

type CookieConfig struct {
	Secret string `mapstructure:"secret"`
	Secure bool   `mapstructure:"secure"`
}

type ApprovalConfig struct {
	NotifyConcurrency int           `mapstructure:"notify_concurrency"`
	NotifyTimeout     time.Duration `mapstructure:"notify_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file, env only
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.issuer", "backoffice")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("translation.azure_endpoint", "https://api.cognitive.microsofttranslator.com")
	v.SetDefault("translation.cache_ttl_ms", 0)
	v.SetDefault("translation.cache_max_entries", 10000)
	v.SetDefault("translation.http_timeout_ms", 8000)
	v.SetDefault("translation.rate_limit", "60-M")

	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)

	v.SetDefault("approval.notify_concurrency", 4)
	v.SetDefault("approval.notify_timeout", 30*time.Second)
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Translation
	v.BindEnv("translation.azure_key", "AZURE_TRANSLATOR_KEY")
	v.BindEnv("translation.azure_region", "AZURE_TRANSLATOR_REGION")
	v.BindEnv("translation.azure_endpoint", "AZURE_TRANSLATOR_ENDPOINT")
	v.BindEnv("translation.deepl_key", "DEEPL_API_KEY")
	v.BindEnv("translation.deepl_url", "DEEPL_API_URL")
	v.BindEnv("translation.cache_ttl_ms", "TRANSLATION_CACHE_TTL_MS")
	v.BindEnv("translation.cache_max_entries", "TRANSLATION_CACHE_MAX_ENTRIES")
	v.BindEnv("translation.http_timeout_ms", "TRANSLATION_HTTP_TIMEOUT_MS")

	// Mail
	v.BindEnv("mail.gmail_user", "GMAIL_USER")
	v.BindEnv("mail.gmail_app_password", "GMAIL_APP_PASSWORD")

	// Cookies
	v.BindEnv("cookie.secret", "COOKIE_SECRET")

	// Approval
	v.BindEnv("approval.notify_concurrency", "APPROVAL_NOTIFY_CONCURRENCY")
}

// GetEnvOrDefault returns the env value or the fallback
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
