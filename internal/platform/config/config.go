package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const placeholderSecret = "CHANGE_ME"

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type Config struct {
	Mode string `mapstructure:"mode"` // dev|release

	Server struct {
		Address  string `mapstructure:"address"`
		HTTPPort string `mapstructure:"http_port"`
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`
	} `mapstructure:"logs"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TTL       time.Duration `mapstructure:"ttl"`
	} `mapstructure:"auth"`

	Assignment struct {
		TokenSecret   string        `mapstructure:"token_secret"`
		TokenTTL      time.Duration `mapstructure:"token_ttl"`
		PublicBaseURL string        `mapstructure:"public_base_url"`
		ReclaimCron   string        `mapstructure:"reclaim_cron"`
		Timezone      string        `mapstructure:"timezone"`
	} `mapstructure:"assignment"`

	// tenant name -> connection
	Tenants map[string]DatabaseConfig `mapstructure:"tenants"`

	Mail struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"mail"`

	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
}

// Load reads defaults, then an optional config file, then the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "parc"))
		}
		v.AddConfigPath("/etc/parc")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "dev")

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")

	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")
	v.SetDefault("logs.file", "")

	v.SetDefault("auth.jwt_secret", placeholderSecret)
	v.SetDefault("auth.ttl", 24*time.Hour)

	v.SetDefault("assignment.token_secret", placeholderSecret)
	v.SetDefault("assignment.token_ttl", 7*24*time.Hour)
	v.SetDefault("assignment.public_base_url", "http://localhost:3000")
	v.SetDefault("assignment.reclaim_cron", "0 2 * * *")
	v.SetDefault("assignment.timezone", "Europe/Paris")

	v.SetDefault("mail.port", 587)
	v.SetDefault("cors.allow_origins", []string{"http://localhost:3000"})
}

// IsRelease reports whether diagnostic details must be hidden from clients.
func (c *Config) IsRelease() bool { return c.Mode == "release" }

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	if s := strings.TrimSpace(c.Auth.JWTSecret); s == "" || s == placeholderSecret {
		return errors.New("auth.jwt_secret must be set (not empty and not CHANGE_ME)")
	}
	if s := strings.TrimSpace(c.Assignment.TokenSecret); s == "" || s == placeholderSecret {
		return errors.New("assignment.token_secret must be set (not empty and not CHANGE_ME)")
	}
	if c.Assignment.TokenTTL <= 0 {
		return errors.New("assignment.token_ttl must be positive")
	}
	if strings.TrimSpace(c.Assignment.PublicBaseURL) == "" {
		return errors.New("assignment.public_base_url must not be empty")
	}
	if _, err := cron.ParseStandard(c.Assignment.ReclaimCron); err != nil {
		return fmt.Errorf("assignment.reclaim_cron: %w", err)
	}
	if _, err := time.LoadLocation(c.Assignment.Timezone); err != nil {
		return fmt.Errorf("assignment.timezone: %w", err)
	}
	if len(c.Tenants) == 0 {
		return errors.New("at least one tenant database must be configured")
	}
	return nil
}
