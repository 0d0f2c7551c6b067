package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "SETLIST"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	DBPath     string        `mapstructure:"db_path"`

	LivenessTimeout time.Duration `mapstructure:"liveness_timeout"`
	DrainGrace      time.Duration `mapstructure:"drain_grace"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	MailboxSize     int           `mapstructure:"mailbox_size"`

	RateLimit      int           `mapstructure:"rate_limit"`
	RateInterval   time.Duration `mapstructure:"rate_interval"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration { return c.PingPeriod * 10 / 9 }

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PingPeriod <= 0 {
		errs = append(errs, errors.New("ping_period must be positive"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("read_limit must be positive"))
	}
	if c.DrainGrace <= 0 {
		errs = append(errs, errors.New("drain_grace must be positive"))
	}
	if c.LivenessTimeout < 0 {
		errs = append(errs, errors.New("liveness_timeout must not be negative"))
	}
	if c.SendBuffer <= 0 || c.MailboxSize <= 0 {
		errs = append(errs, errors.New("send_buffer and mailbox_size must be positive"))
	}
	if c.RateLimit <= 0 || c.RateInterval <= 0 {
		errs = append(errs, errors.New("rate_limit and rate_interval must be positive"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("db_path", "./data/setlists.db")
	v.SetDefault("liveness_timeout", "30s")
	v.SetDefault("drain_grace", "60s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("mailbox_size", 256)
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("allowed_origins", []string{})
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads the given yaml file. A missing file is not an error.
// Values from the environment (SETLIST_PORT, SETLIST_SECRET, ...) and from
// a .env file in the working directory override the file.
func LoadFile(fileName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("db", cfg.DBPath).Msg("config ready")
	return &cfg, nil
}
