package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | sqlite
		DSN      string `yaml:"dsn"`    // overrides the fields below
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Blob struct {
		Driver   string `yaml:"driver"` // minio | fs
		BasePath string `yaml:"basePath"`
	} `yaml:"blob"`

	Minio struct {
		Endpoint   string        `yaml:"endpoint"`
		AccessKey  string        `yaml:"accessKey"`
		SecretKey  string        `yaml:"secretKey"`
		BucketName string        `yaml:"bucketName"`
		Region     string        `yaml:"region"`
		UseSSL     bool          `yaml:"useSSL"`
		PresignTTL time.Duration `yaml:"presignTTL"`
	} `yaml:"minio"`

	Backend struct {
		BaseURL          string        `yaml:"baseURL"`
		ContextTimeout   time.Duration `yaml:"contextTimeout"`
		EvaluateTimeout  time.Duration `yaml:"evaluateTimeout"`
		DefaultThreshold float64       `yaml:"defaultThreshold"`
		DefaultFileType  string        `yaml:"defaultFileType"`
	} `yaml:"backend"`

	Crypto struct {
		URLSecret       string   `yaml:"urlSecret"`
		PreviousSecrets []string `yaml:"previousSecrets"`
	} `yaml:"crypto"`

	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`

	Upload struct {
		MaxBytes      int64  `yaml:"maxBytes"`
		MaxFiles      int    `yaml:"maxFiles"`
		KeyScheme     string `yaml:"keyScheme"` // id | legacy
		RejectSecrets bool   `yaml:"rejectSecrets"`
	} `yaml:"upload"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"` // tokens per second
	} `yaml:"ratelimit"`
}

// Default mengembalikan config yang jalan tanpa file: sqlite + fs blob.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ShutdownTimeout = 5 * time.Second
	c.Database.Driver = "sqlite"
	c.Blob.Driver = "fs"
	c.Blob.BasePath = "data/blobs"
	c.Backend.BaseURL = "http://localhost:8000"
	c.Backend.ContextTimeout = 60 * time.Second
	c.Backend.EvaluateTimeout = 120 * time.Second
	c.Backend.DefaultThreshold = 0.5
	c.Backend.DefaultFileType = "evidence"
	c.Upload.MaxBytes = 50 << 20
	c.Upload.MaxFiles = 20
	c.Upload.KeyScheme = "id"
	c.Logging.Level = "info"
	c.Logging.Format = "json"
	c.CORS.AllowedOrigins = []string{"*"}
	c.RateLimit.Capacity = 60
	c.RateLimit.RefillRate = 1
	return &c
}

// Path returns config.yaml or $CONFIG_PATH.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

// Load baca file config.yaml di atas default, lalu apply env override.
// File yang tidak ada bukan error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Backend.BaseURL = envOr("BACKEND_URL", c.Backend.BaseURL)
	c.Crypto.URLSecret = envOr("URL_ENCRYPTION_KEY", c.Crypto.URLSecret)
	if v := os.Getenv("URL_ENCRYPTION_PREVIOUS_KEYS"); v != "" {
		c.Crypto.PreviousSecrets = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Crypto.PreviousSecrets = append(c.Crypto.PreviousSecrets, s)
			}
		}
	}
	c.Auth.JWTSecret = envOr("JWT_SECRET", c.Auth.JWTSecret)
	c.Database.Driver = envOr("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = envOr("DB_DSN", c.Database.DSN)
	c.Logging.Level = envOr("LOG_LEVEL", c.Logging.Level)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Validate rejects configs the server cannot start with.
func (c *Config) Validate() error {
	var errs *multierror.Error
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = multierror.Append(errs, fmt.Errorf("database.driver %q: want mysql, postgres or sqlite", c.Database.Driver))
	}
	switch c.Blob.Driver {
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			errs = multierror.Append(errs, errors.New("minio.endpoint and minio.bucketName are required"))
		}
	case "fs":
		if c.Blob.BasePath == "" {
			errs = multierror.Append(errs, errors.New("blob.basePath is required"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("blob.driver %q: want minio or fs", c.Blob.Driver))
	}
	if c.Upload.MaxBytes <= 0 || c.Upload.MaxFiles <= 0 {
		errs = multierror.Append(errs, errors.New("upload.maxBytes and upload.maxFiles must be positive"))
	}
	switch c.Upload.KeyScheme {
	case "", "id", "legacy":
	default:
		errs = multierror.Append(errs, fmt.Errorf("upload.keyScheme %q: want id or legacy", c.Upload.KeyScheme))
	}
	if c.Crypto.URLSecret == "" {
		errs = multierror.Append(errs, errors.New("crypto.urlSecret (URL_ENCRYPTION_KEY) is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = multierror.Append(errs, errors.New("auth.jwtSecret (JWT_SECRET) is required"))
	}
	if t := c.Backend.DefaultThreshold; t < 0 || t > 1 {
		errs = multierror.Append(errs, fmt.Errorf("backend.defaultThreshold %v: want 0..1", t))
	}
	return errs.ErrorOrNil()
}

// MaxRequestBytes caps one multipart upload request: every allowed file at
// full size plus room for headers and boundaries.
func (c *Config) MaxRequestBytes() int64 {
	return c.Upload.MaxBytes*int64(c.Upload.MaxFiles) + 1<<20
}

// DSN picks the explicit DSN or builds one for the configured driver.
func (c *Config) DSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	switch c.Database.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "postgres":
		return c.PostgresDSN()
	default:
		return c.SQLiteDSN()
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres (lib/pq key=value form)
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}

// SQLiteDSN uses database.name as the file path, default evidence.db.
func (c *Config) SQLiteDSN() string {
	name := c.Database.Name
	if name == "" {
		name = "evidence.db"
	}
	return "file:" + name + "?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
}
