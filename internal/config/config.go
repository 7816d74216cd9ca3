package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ErrMissingAuthSecret is returned when no signing secret is configured.
// This is fatal at startup: the service must never run with an empty secret.
var ErrMissingAuthSecret = errors.New("auth.secret is not configured")

type Config struct {
	APIPort int    `mapstructure:"apiPort"`
	Env     string `mapstructure:"env"`
	BaseURL string `mapstructure:"baseUrl"`

	Database struct {
		Type            string `mapstructure:"type"` // "postgres" or "sqlite"
		Host            string `mapstructure:"host"`
		Port            string `mapstructure:"port"`
		User            string `mapstructure:"user"`
		Password        string `mapstructure:"password"`
		Name            string `mapstructure:"name"`
		SSLMode         string `mapstructure:"sslMode"`
		Path            string `mapstructure:"path"` // sqlite only
		MaxConns        int    `mapstructure:"maxConns"`
		MaxIdle         int    `mapstructure:"maxIdle"`
		ConnMaxLifetime string `mapstructure:"connMaxLifetime"`
	} `mapstructure:"database"`

	Auth struct {
		Secret         string `mapstructure:"secret"`
		PreviousSecret string `mapstructure:"previousSecret"`
		AdminSecret    string `mapstructure:"adminSecret"`
	} `mapstructure:"auth"`

	Email struct {
		Provider string `mapstructure:"provider"` // "resend" or "sendgrid"
		APIKey   string `mapstructure:"apiKey"`
		From     string `mapstructure:"from"`
	} `mapstructure:"email"`

	Audit struct {
		Enabled         bool   `mapstructure:"enabled"`
		Endpoint        string `mapstructure:"endpoint"`
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		AccessKeyID     string `mapstructure:"accessKeyId"`
		SecretAccessKey string `mapstructure:"secretAccessKey"`
	} `mapstructure:"audit"`
}

// IsProduction reports whether the service runs with production hardening
// (Secure cookies, HTTPS magic-link URLs).
func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, err
		}
		log.Printf("Warning: Could not read config file: %s. Using defaults or environment variables.", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIPort == 0 {
		cfg.APIPort = 8081
		log.Println("APIPort not specified, using default 8081")
	}

	if cfg.Env == "" {
		cfg.Env = os.Getenv("ACADEMY_ENV")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://bitcoinsovereign.academy"
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
		log.Println("Database type not specified, using sqlite")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/data/academy.db"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "require"
	}

	// Secrets come from the environment in every real deployment; the file
	// keys exist for local development only.
	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = os.Getenv("AUTH_SECRET")
	}
	if cfg.Auth.PreviousSecret == "" {
		cfg.Auth.PreviousSecret = os.Getenv("AUTH_SECRET_PREVIOUS")
	}
	if cfg.Auth.AdminSecret == "" {
		cfg.Auth.AdminSecret = os.Getenv("ADMIN_SECRET")
	}
	if cfg.Auth.Secret == "" {
		return nil, ErrMissingAuthSecret
	}

	if cfg.Email.From == "" {
		cfg.Email.From = "Bitcoin Sovereign Academy <hello@bitcoinsovereign.academy>"
	}

	log.Printf("Configuration loaded: env=%s port=%d db=%s", cfg.Env, cfg.APIPort, cfg.Database.Type)
	return &cfg, nil
}
