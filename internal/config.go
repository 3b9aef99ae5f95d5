package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server" envPrefix:"HTTP_"`
	Database      DatabaseConfig      `mapstructure:"database" envPrefix:"DB_"`
	Security      SecurityConfig      `mapstructure:"security" envPrefix:"SECURITY_"`
	Redis         RedisConfig         `mapstructure:"redis" envPrefix:"REDIS_"`
	Email         EmailConfig         `mapstructure:"email" envPrefix:"EMAIL_"`
	Storage       StorageConfig       `mapstructure:"storage" envPrefix:"STORAGE_"`
	OAuth         OAuthConfig         `mapstructure:"oauth" envPrefix:"OAUTH_"`
	OTP           OTPConfig           `mapstructure:"otp" envPrefix:"OTP_"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Environment   string              `mapstructure:"environment" env:"APP_ENV" envDefault:"development"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" env:"PORT" envDefault:"8080"`
	BaseURL           string        `mapstructure:"base_url" env:"BASE_URL"`
	AllowedOrigins    string        `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS" envDefault:"*"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"15s"`
	ValidateRequests  bool          `mapstructure:"validate_requests" env:"VALIDATE_REQUESTS" envDefault:"true"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
	Source          string        `mapstructure:"source" env:"SOURCE,required"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret" env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret" env:"REFRESH_TOKEN_SECRET,required"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" env:"ACCESS_TOKEN_DURATION" envDefault:"15m"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" env:"REFRESH_TOKEN_DURATION" envDefault:"168h"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" env:"BCRYPT_COST" envDefault:"12"`
}

type RedisConfig struct {
	ConnectionURL  string        `mapstructure:"url" env:"URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `mapstructure:"retry_attempts" env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `mapstructure:"retry_interval" env:"RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" env:"CONNECT_TIMEOUT" envDefault:"15s"`
}

type EmailConfig struct {
	PostmarkServerToken  string `mapstructure:"postmark_server_token" env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `mapstructure:"postmark_account_token" env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `mapstructure:"sender_email" env:"SENDER_EMAIL" envDefault:"no-reply@crm.local"`
	SupportEmail         string `mapstructure:"support_email" env:"SUPPORT_EMAIL" envDefault:"support@crm.local"`
}

type StorageConfig struct {
	Bucket         string `mapstructure:"bucket" env:"BUCKET"`
	Region         string `mapstructure:"region" env:"REGION" envDefault:"us-east-1"`
	AccessKeyID    string `mapstructure:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretKey      string `mapstructure:"secret_key" env:"SECRET_KEY"`
	Endpoint       string `mapstructure:"endpoint" env:"ENDPOINT"`
	BaseURL        string `mapstructure:"base_url" env:"BASE_URL"`
	ForcePathStyle bool   `mapstructure:"force_path_style" env:"FORCE_PATH_STYLE"`
	MaxAvatarBytes int64  `mapstructure:"max_avatar_bytes" env:"MAX_AVATAR_BYTES" envDefault:"5242880"`
}

type OAuthConfig struct {
	GoogleClientID     string        `mapstructure:"google_client_id" env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `mapstructure:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string        `mapstructure:"google_redirect_url" env:"GOOGLE_REDIRECT_URL"`
	StateTTL           time.Duration `mapstructure:"state_ttl" env:"STATE_TTL" envDefault:"10m"`
}

type OTPConfig struct {
	TTL         time.Duration `mapstructure:"ttl" env:"TTL" envDefault:"5m"`
	Length      int           `mapstructure:"length" env:"LENGTH" envDefault:"6"`
	MaxAttempts int           `mapstructure:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"5"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging" envPrefix:"LOG_"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LEVEL" envDefault:"info"`
	Format string `mapstructure:"format" env:"FORMAT" envDefault:"json"`
}

// LoadConfigFromEnv builds the configuration purely from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return &cfg, nil
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.OTP.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("otp config: %v", err))
	}

	if err := c.Observability.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	for _, origin := range c.Origins() {
		if origin == "*" {
			continue
		}
		if _, err := url.Parse(origin); err != nil {
			return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

// Origins splits the comma separated allow-list.
func (c *ServerConfig) Origins() []string {
	if c.AllowedOrigins == "" {
		return []string{"*"}
	}
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access token secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh token secret must be at least 32 characters")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.AccessTokenDuration <= 0 || c.RefreshTokenDuration <= c.AccessTokenDuration {
		return errors.New("refresh_token_duration must be greater than access_token_duration")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *OTPConfig) Validate() error {
	if c.Length < 4 || c.Length > 10 {
		return errors.New("length must be between 4 and 10")
	}
	if c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level %q", c.Level)
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}

// Enabled reports whether Google sign-in has been configured.
func (c *OAuthConfig) Enabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// Enabled reports whether avatar uploads have somewhere to go.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != ""
}
