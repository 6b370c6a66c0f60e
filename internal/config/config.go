// Package config loads settings from .env files, an optional YAML file and
// ROAMER_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type GitHub struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type Blob struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type Minio struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Config struct {
	Port          string        `yaml:"port"`
	BaseURL       string        `yaml:"base_url"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	Database      Database      `yaml:"database"`
	GitHub        GitHub        `yaml:"github"`
	Blob          Blob          `yaml:"blob"`
	S3            S3            `yaml:"s3"`
	Minio         Minio         `yaml:"minio"`
	Redis         Redis         `yaml:"redis"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	MapboxToken   string        `yaml:"mapbox_token"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

func Default() Config {
	return Config{
		Port:       "3000",
		BaseURL:    "http://localhost:3000",
		LogLevel:   "info",
		LogFormat:  "text",
		Database:   Database{Driver: "sqlite", URL: "roamer.db"},
		Blob:       Blob{Backend: "fs", Dir: "data/uploads"},
		S3:         S3{Region: "us-east-1"},
		CacheTTL:   5 * time.Minute,
		SessionTTL: 30 * 24 * time.Hour,
	}
}

// Load builds the configuration. path may be empty; ROAMER_CONFIG names a
// YAML file when it is.
func Load(path string) (Config, error) {
	// .env.local wins over .env because godotenv never overrides.
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("ROAMER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("ROAMER_PORT", &cfg.Port)
	str("ROAMER_BASE_URL", &cfg.BaseURL)
	str("ROAMER_LOG_LEVEL", &cfg.LogLevel)
	str("ROAMER_LOG_FORMAT", &cfg.LogFormat)
	str("ROAMER_DB_DRIVER", &cfg.Database.Driver)
	str("ROAMER_DB_URL", &cfg.Database.URL)
	str("ROAMER_GITHUB_CLIENT_ID", &cfg.GitHub.ClientID)
	str("ROAMER_GITHUB_CLIENT_SECRET", &cfg.GitHub.ClientSecret)
	str("ROAMER_BLOB_BACKEND", &cfg.Blob.Backend)
	str("ROAMER_BLOB_DIR", &cfg.Blob.Dir)
	str("ROAMER_S3_ENDPOINT", &cfg.S3.Endpoint)
	str("ROAMER_S3_BUCKET", &cfg.S3.Bucket)
	str("ROAMER_S3_REGION", &cfg.S3.Region)
	str("ROAMER_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("ROAMER_S3_SECRET_KEY", &cfg.S3.SecretKey)
	str("ROAMER_MINIO_ENDPOINT", &cfg.Minio.Endpoint)
	str("ROAMER_MINIO_BUCKET", &cfg.Minio.Bucket)
	str("ROAMER_MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	str("ROAMER_MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	str("ROAMER_REDIS_ADDR", &cfg.Redis.Addr)
	str("ROAMER_REDIS_PASSWORD", &cfg.Redis.Password)
	str("ROAMER_MAPBOX_TOKEN", &cfg.MapboxToken)

	if v, ok := os.LookupEnv("ROAMER_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ROAMER_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	for key, dst := range map[string]*bool{
		"ROAMER_MINIO_USE_SSL":  &cfg.Minio.UseSSL,
		"ROAMER_SECURE_COOKIES": &cfg.SecureCookies,
	} {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	for key, dst := range map[string]*time.Duration{
		"ROAMER_CACHE_TTL":   &cfg.CacheTTL,
		"ROAMER_SESSION_TTL": &cfg.SessionTTL,
	} {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Blob.Backend {
	case "fs":
		if c.Blob.Dir == "" {
			errs = append(errs, errors.New("blob.dir is required for the fs backend"))
		}
	case "s3":
		if c.S3.Bucket == "" || c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			errs = append(errs, errors.New("s3.bucket, s3.access_key and s3.secret_key are required for the s3 backend"))
		}
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio.endpoint and minio.bucket are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.backend %q must be fs, s3 or minio", c.Blob.Backend))
	}
	if c.GitHub.ClientID == "" || c.GitHub.ClientSecret == "" {
		errs = append(errs, errors.New("github.client_id and github.client_secret are required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	return errors.Join(errs...)
}

// CallbackURL is the OAuth redirect URL registered with GitHub.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/callback/github"
}
