package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	IdentityModeEmail   = "email"
	IdentityModeSession = "session"
)

type Config struct {
	GoogleClientID     string        `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `mapstructure:"GOOGLE_CLIENT_SECRET"`
	RedirectURL        string        `mapstructure:"GOOGLE_REDIRECT_URI"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	FrontendURL        string        `mapstructure:"FRONTEND_URL"`
	Port               string        `mapstructure:"PORT"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	Environment        string        `mapstructure:"ENVIRONMENT"`
	IdentityMode       string        `mapstructure:"IDENTITY_MODE"`
	SessionRedisURL    string        `mapstructure:"SESSION_REDIS_URL"`
	TimeZone           string        `mapstructure:"TIME_ZONE"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var envs = []string{
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI", "DATABASE_URL", "FRONTEND_URL",
	"PORT", "LOG_LEVEL", "ENVIRONMENT", "IDENTITY_MODE", "SESSION_REDIS_URL", "TIME_ZONE", "SHUTDOWN_TIMEOUT",
}

// LoadConfig reads configuration from an optional .env file in dir and from
// the process environment. Environment variables win over the file.
func LoadConfig(dir string) (Config, error) {
	var config Config

	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	// a missing .env is fine, deployments use plain env vars
	_ = v.ReadInConfig()

	v.SetDefault("PORT", "5000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("IDENTITY_MODE", IdentityModeEmail)
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")

	for _, env := range envs {
		if err := v.BindEnv(env); err != nil {
			return config, err
		}
	}
	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate reports every missing required key at once.
func (c Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"GOOGLE_CLIENT_ID", c.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", c.GoogleClientSecret},
		{"GOOGLE_REDIRECT_URI", c.RedirectURL},
		{"DATABASE_URL", c.DatabaseURL},
		{"FRONTEND_URL", c.FrontendURL},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.IdentityMode {
	case IdentityModeEmail, IdentityModeSession:
	default:
		return fmt.Errorf("invalid IDENTITY_MODE %q: want %q or %q", c.IdentityMode, IdentityModeEmail, IdentityModeSession)
	}
	return nil
}

func (c Config) ListenAddr() string {
	return ":" + c.Port
}
