package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendCloud  = "cloud"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	Port      int         `mapstructure:"port"`
	APIURL    string      `mapstructure:"api_url"`
	BodyLimit int64       `mapstructure:"body_limit"`
	Log       LogConfig   `mapstructure:"log"`
	Auth      AuthConfig  `mapstructure:"auth"`
	Storage   StorageConf `mapstructure:"storage"`
	Postgres  Postgres    `mapstructure:"postgres"`
	S3        S3          `mapstructure:"s3"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	HtpasswdFile string `mapstructure:"htpasswd_file"`
}

type StorageConf struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	Compress      bool   `mapstructure:"compress"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

type S3 struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PathStyle bool   `mapstructure:"path_style"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("body_limit", 10<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.htpasswd_file", "")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.compress", true)
	v.SetDefault("storage.encryption_key", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "fragments")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.path_style", true)
}

// LoadConfig reads config.yaml from path when present and overlays
// FRAGMENTS_* environment variables (FRAGMENTS_STORAGE_BACKEND for
// storage.backend). A missing file is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix("FRAGMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules viper cannot express.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.BodyLimit <= 0 {
		errs = append(errs, errors.New("body_limit must be positive"))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the badger backend"))
		}
	case BackendCloud:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the cloud backend"))
		}
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.endpoint and s3.bucket are required for the cloud backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr is the listen address for Port.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
