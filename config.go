package quarry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes YAML duration strings ("5s",
// "2m30s").
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as a Go duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds configuration for the orchestration engine and the strategies
// shipped with it.
type Config struct {
	// Concurrency is the maximum number of jobs executing at once.
	Concurrency int `yaml:"concurrency"`

	// PollInterval is how often the drainer polls for pending jobs.
	PollInterval Duration `yaml:"poll_interval"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// HTTPAddr is the listen address for the HTTP API.
	HTTPAddr string `yaml:"http_addr"`

	// MongoURI and MongoDatabase configure the job store backend.
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	// Artifact store (MinIO / S3-compatible).
	MinioEndpoint   string `yaml:"minio_endpoint"`
	MinioAccessKey  string `yaml:"minio_access_key"`
	MinioSecretKey  string `yaml:"minio_secret_key"`
	MinioSecure     bool   `yaml:"minio_secure"`
	RawBucket       string `yaml:"raw_bucket"`
	ProcessedBucket string `yaml:"processed_bucket"`

	// Fetch strategy knobs. MaxRetries and RetryDelay apply to transient
	// network failures inside the fetch strategy only; the supervisor never
	// retries a failed job on its own.
	UserAgent      string   `yaml:"user_agent"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryDelay     Duration `yaml:"retry_delay"`
	RateLimit      float64  `yaml:"rate_limit"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     5,
		PollInterval:    Duration(5 * time.Second),
		ShutdownTimeout: Duration(30 * time.Second),
		HTTPAddr:        ":8080",
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "quarry",
		MinioEndpoint:   "localhost:9000",
		MinioSecure:     false,
		RawBucket:       "raw-data",
		ProcessedBucket: "processed-data",
		UserAgent:       "quarry/1.0 (+https://github.com/quarryhq/quarry)",
		RequestTimeout:  Duration(30 * time.Second),
		MaxRetries:      3,
		RetryDelay:      Duration(5 * time.Second),
		RateLimit:       2,
	}
}

// LoadConfig reads a YAML config file over the defaults, then applies
// environment overrides for the connection settings. An empty path skips
// the file and uses defaults plus environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	for env, target := range map[string]*string{
		"QUARRY_MONGO_URI":        &cfg.MongoURI,
		"QUARRY_MONGO_DATABASE":   &cfg.MongoDatabase,
		"QUARRY_MINIO_ENDPOINT":   &cfg.MinioEndpoint,
		"QUARRY_MINIO_ACCESS_KEY": &cfg.MinioAccessKey,
		"QUARRY_MINIO_SECRET_KEY": &cfg.MinioSecretKey,
		"QUARRY_HTTP_ADDR":        &cfg.HTTPAddr,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}

	return cfg, nil
}
