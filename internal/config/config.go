package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey   = "BALLCHASING_API_KEY"
	EnvRegion   = "AWS_REGION"
	EnvBucket   = "S3_BUCKET_NAME"
	EnvS3Prefix = "S3_PREFIX"
)

// Defaults for the remote catalog.
const (
	DefaultBaseURL           = "https://ballchasing.com/api"
	DefaultPageSize          = 200
	DefaultTimeoutSeconds    = 60
	DefaultRequestsPerSecond = 1.0
	DefaultRequestsPerHour   = 200
)

// Config represents the main configuration for impulse.
type Config struct {
	BaseDir   string          `toml:"base_dir"`
	LogDir    string          `toml:"log_dir"`
	CacheDir  string          `toml:"cache_dir"`
	API       APIConfig       `toml:"api"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Database  DatabaseConfig  `toml:"database"`
	Storage   StorageConfig   `toml:"storage"`

	// APIKey is never written to the config file; it comes from the
	// environment or a .env file.
	APIKey string `toml:"-"`
}

// APIConfig configures the remote catalog client.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	PageSize       int    `toml:"page_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RateLimitConfig holds the two remote request budgets.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RequestsPerHour   int     `toml:"requests_per_hour"`
}

// DatabaseConfig represents configuration for the tracking database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// StorageConfig represents configuration for the replay storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "local", "s3" or "memory"

	// Local-specific fields (only used when Type == "local")
	LocalDir string `toml:"local_dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible stores
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		CacheDir: filepath.Join(baseDir, "cache"),
		API: APIConfig{
			BaseURL:        DefaultBaseURL,
			PageSize:       DefaultPageSize,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			RequestsPerHour:   DefaultRequestsPerHour,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "db", "replays.db"),
		},
		Storage: StorageConfig{
			Type:     "local",
			LocalDir: filepath.Join(baseDir, "replays"),
		},
	}
}

// ApplyDefaults fills zero-valued settings from NewConfig(c.BaseDir).
func (c *Config) ApplyDefaults() {
	d := NewConfig(c.BaseDir)
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.PageSize <= 0 {
		c.API.PageSize = d.API.PageSize
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = d.API.TimeoutSeconds
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = d.RateLimit.RequestsPerSecond
	}
	if c.RateLimit.RequestsPerHour <= 0 {
		c.RateLimit.RequestsPerHour = d.RateLimit.RequestsPerHour
	}
	if c.Database.Type == "" {
		c.Database = d.Database
	}
	if c.Storage.Type == "" {
		c.Storage.Type = d.Storage.Type
	}
	if c.Storage.Type == "local" && c.Storage.LocalDir == "" {
		c.Storage.LocalDir = d.Storage.LocalDir
	}
}

// ApplyEnv loads envFile (when present) into the process environment and
// copies secrets and S3 overrides into the config. A missing envFile is
// not an error.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	c.APIKey = os.Getenv(EnvAPIKey)
	if v := os.Getenv(EnvBucket); v != "" {
		c.Storage.S3Bucket = v
	}
	if v := os.Getenv(EnvRegion); v != "" {
		c.Storage.S3Region = v
	}
	if v := os.Getenv(EnvS3Prefix); v != "" {
		c.Storage.S3Prefix = v
	}
	return nil
}

// Validate checks everything needed before any remote work starts.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return &ConfigurationError{Field: EnvAPIKey, Reason: "API key is required"}
	}
	return c.Storage.Validate()
}

// Validate checks that the fields required by the storage type are set.
func (s StorageConfig) Validate() error {
	switch s.Type {
	case "local":
		if s.LocalDir == "" {
			return &ConfigurationError{Field: "storage.local_dir", Reason: "required for local storage"}
		}
	case "s3":
		if s.S3Bucket == "" {
			return &ConfigurationError{Field: "storage.s3_bucket", Reason: "required for s3 storage (or set " + EnvBucket + ")"}
		}
		if s.S3Region == "" {
			return &ConfigurationError{Field: "storage.s3_region", Reason: "required for s3 storage (or set " + EnvRegion + ")"}
		}
	case "memory":
	default:
		return &ConfigurationError{Field: "storage.type", Reason: fmt.Sprintf("unknown storage type: %s", s.Type)}
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
