package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// MiB is one mebibyte.
const MiB = 1 << 20

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Compressor CompressorConfig `mapstructure:"compressor"`
	Session    SessionConfig    `mapstructure:"session"`
	Share      ShareConfig      `mapstructure:"share"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// UploadConfig contains the selection constraints
type UploadConfig struct {
	MaxSize          int64    `mapstructure:"max_size" validate:"gt=0"`
	AllowedMIMETypes []string `mapstructure:"allowed_mime_types" validate:"required,min=1,dive,required"`
}

// CompressorConfig contains compression settings
type CompressorConfig struct {
	Backend         string        `mapstructure:"backend" validate:"oneof=auto imaging simulated"`
	DefaultQuality  int           `mapstructure:"default_quality" validate:"min=10,max=100"`
	MinQuality      int           `mapstructure:"min_quality" validate:"min=1,max=100"`
	MaxQuality      int           `mapstructure:"max_quality" validate:"min=1,max=100"`
	OutputMarker    string        `mapstructure:"output_marker" validate:"required"`
	SimulatedDelay  time.Duration `mapstructure:"simulated_delay"`
	SimulatedJitter time.Duration `mapstructure:"simulated_jitter"`
	ProgressEvery   time.Duration `mapstructure:"progress_every"`
}

// SessionConfig contains page session settings
type SessionConfig struct {
	NoticeTTL   time.Duration `mapstructure:"notice_ttl"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	SweepEvery  time.Duration `mapstructure:"sweep_every"`
}

// ShareConfig contains the optional S3-compatible share target.
// Sharing is reported as unsupported when Endpoint is empty.
type ShareConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Bucket    string        `mapstructure:"bucket" validate:"required_with=Endpoint"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	LinkTTL   time.Duration `mapstructure:"link_ttl"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Upload: UploadConfig{
			MaxSize: 20 * MiB,
			AllowedMIMETypes: []string{
				"image/jpeg", "image/png", "image/webp", "image/gif",
			},
		},
		Compressor: CompressorConfig{
			Backend:         "auto",
			DefaultQuality:  70,
			MinQuality:      10,
			MaxQuality:      100,
			OutputMarker:    "_ai",
			SimulatedDelay:  500 * time.Millisecond,
			SimulatedJitter: 100 * time.Millisecond,
			ProgressEvery:   100 * time.Millisecond,
		},
		Session: SessionConfig{
			NoticeTTL:   3 * time.Second,
			IdleTimeout: 30 * time.Minute,
			SweepEvery:  time.Minute,
		},
		Share: ShareConfig{
			Bucket:  "shared-images",
			LinkTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "image-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compressor")
		v.AddConfigPath("/etc/image-compressor")
	}

	v.SetEnvPrefix("IMAGE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate normalizes the configuration and checks its constraints
func (c *Config) Validate() error {
	c.Upload.AllowedMIMETypes = normalizeMIMETypes(c.Upload.AllowedMIMETypes)
	c.Compressor.Backend = strings.ToLower(strings.TrimSpace(c.Compressor.Backend))

	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Compressor.MinQuality > c.Compressor.MaxQuality {
		return fmt.Errorf("min_quality %d exceeds max_quality %d",
			c.Compressor.MinQuality, c.Compressor.MaxQuality)
	}
	if c.Compressor.DefaultQuality < c.Compressor.MinQuality || c.Compressor.DefaultQuality > c.Compressor.MaxQuality {
		return fmt.Errorf("default_quality %d outside [%d, %d]",
			c.Compressor.DefaultQuality, c.Compressor.MinQuality, c.Compressor.MaxQuality)
	}

	if c.Session.NoticeTTL <= 0 {
		c.Session.NoticeTTL = 3 * time.Second
	}
	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = 30 * time.Minute
	}
	if c.Session.SweepEvery <= 0 {
		c.Session.SweepEvery = time.Minute
	}
	if c.Compressor.ProgressEvery <= 0 {
		c.Compressor.ProgressEvery = 100 * time.Millisecond
	}
	if c.Share.LinkTTL <= 0 {
		c.Share.LinkTTL = 24 * time.Hour
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// ShareEnabled reports whether an S3-compatible share target is configured
func (c *Config) ShareEnabled() bool {
	return c.Share.Endpoint != ""
}

func normalizeMIMETypes(types []string) []string {
	normalized := lo.Map(types, func(t string, _ int) string {
		return strings.ToLower(strings.TrimSpace(t))
	})
	return lo.Uniq(lo.Compact(normalized))
}
