package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ebsight/ebsight/internal/pricing"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	AWS           AWSConfig           `yaml:"aws"`
	Scanner       ScannerConfig       `yaml:"scanner"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Auth          AuthConfig          `yaml:"auth"`
	Security      SecurityConfig      `yaml:"security"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	CORSAllowOrigin string        `yaml:"cors_allow_origin"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AWSConfig covers the scanner's own identity, not customer credentials.
// Customer access always goes through role assumption.
type AWSConfig struct {
	Region          string        `yaml:"region"`
	ScannerRoleName string        `yaml:"scanner_role_name"`
	SessionDuration time.Duration `yaml:"session_duration"`
}

type ScannerConfig struct {
	ScanTimeout  time.Duration `yaml:"scan_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ScanSchedule string `yaml:"scan_schedule"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SecurityConfig holds the process-wide master secret. Purpose-specific
// keys (the external-id signing key) are derived from it, never used raw.
type SecurityConfig struct {
	MasterSecret string `yaml:"master_secret"`
}

// PricingConfig optionally overrides the built-in rate table. Types without
// an override keep their default rate; an empty config means defaults.
type PricingConfig struct {
	Version string                  `yaml:"version"`
	Rates   map[string]pricing.Rate `yaml:"rates"`
}

type NotificationsConfig struct {
	Slack SlackNotifyConfig `yaml:"slack"`
	Email EmailNotifyConfig `yaml:"email"`
}

type SlackNotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type EmailNotifyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {

		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.ScannerRoleName == "" {
		c.AWS.ScannerRoleName = "EBSightScanner"
	}
	if c.AWS.SessionDuration == 0 {
		c.AWS.SessionDuration = time.Hour
	}

	if c.Scanner.ScanTimeout == 0 {
		c.Scanner.ScanTimeout = 15 * time.Minute
	}
	if c.Scanner.PollInterval == 0 {
		c.Scanner.PollInterval = time.Second
	}

	if c.Scheduler.ScanSchedule == "" {
		c.Scheduler.ScanSchedule = "0 2 * * *"
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "change-me-in-production"

		fmt.Println("WARNING: Using default JWT secret. Set auth.jwt_secret in production!")
	}

	if c.Security.MasterSecret == "" {
		c.Security.MasterSecret = "change-me-in-production"

		fmt.Println("WARNING: Using default master secret. Set security.master_secret in production!")
	}

	if c.Pricing.Version == "" {
		c.Pricing.Version = pricing.DefaultVersion
	}

	if c.Notifications.Email.SMTPPort == 0 {
		c.Notifications.Email.SMTPPort = 587
	}
}
