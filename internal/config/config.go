// Package config provides the configuration for a benchmark run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/idbench/idbench/internal/logging"
	"github.com/idbench/idbench/pkg/types"
)

// Publish targets.
const (
	PublishNone  = "none"
	PublishLocal = "local"
	PublishS3    = "s3"
)

// Config holds the configuration for one benchmark run.
type Config struct {
	// Benchmark workload configuration
	Benchmark BenchmarkConfig `json:"benchmark" yaml:"benchmark"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Output configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// Publish configuration for result artifacts
	Publish PublishConfig `json:"publish" yaml:"publish"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// BenchmarkConfig holds the workload parameters.
type BenchmarkConfig struct {
	// InsertCount is the number of records inserted per strategy
	InsertCount int `json:"insert_count" yaml:"insert_count"`

	// BatchSize is the number of records per bulk-insert call
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// PageSkip is the number of ordered rows skipped by the query benchmark
	PageSkip int `json:"page_skip" yaml:"page_skip"`

	// PageTake is the number of rows returned by the query benchmark
	PageTake int `json:"page_take" yaml:"page_take"`

	// ParallelInserts runs the insert phases of all strategies concurrently
	ParallelInserts bool `json:"parallel_inserts" yaml:"parallel_inserts"`

	// Strategies restricts the run to the listed labels; empty means all
	Strategies []string `json:"strategies" yaml:"strategies"`
}

// DatabaseConfig holds the SQLite configuration.
type DatabaseConfig struct {
	// Path is the database file
	Path string `json:"path" yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// Reset drops the benchmark tables before they are created
	Reset bool `json:"reset" yaml:"reset"`

	// MaxRetries bounds retries of transient storage failures
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
}

// OutputConfig holds result output configuration.
type OutputConfig struct {
	// CSVPath is the result file; empty disables it
	CSVPath string `json:"csv_path" yaml:"csv_path"`

	// MetricsPath is an optional Prometheus textfile
	MetricsPath string `json:"metrics_path" yaml:"metrics_path"`

	// Console prints the result table to stdout
	Console bool `json:"console" yaml:"console"`
}

// PublishConfig holds the object storage target for result artifacts.
type PublishConfig struct {
	// Type is the publish target: none, local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the base directory (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (MinIO, LocalStack)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Benchmark: BenchmarkConfig{
			InsertCount: 100000,
			BatchSize:   1000,
			PageSkip:    5000,
			PageTake:    100,
		},
		Database: DatabaseConfig{
			Path:           "./data/idbench.db",
			BusyTimeout:    5 * time.Second,
			Reset:          true,
			MaxRetries:     5,
			RetryBaseDelay: 100 * time.Millisecond,
		},
		Output: OutputConfig{
			CSVPath: "benchmark_results.csv",
			Console: true,
		},
		Publish: PublishConfig{
			Type:   PublishNone,
			Prefix: "idbench",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve fills in values derived from other settings.
func (c *Config) Resolve() {
	if c.Database.Path == "" {
		c.Database.Path = "./data/idbench.db"
	}
	if c.Publish.Type == "" {
		c.Publish.Type = PublishNone
	}
	if c.Publish.Type == PublishLocal && c.Publish.Path == "" {
		c.Publish.Path = filepath.Join(filepath.Dir(c.Database.Path), "results")
	}
}

// SelectedStrategies returns the strategies to run in declaration order,
// regardless of the order they are listed in the configuration.
func (c *Config) SelectedStrategies() ([]types.Strategy, error) {
	if len(c.Benchmark.Strategies) == 0 {
		return types.AllStrategies(), nil
	}
	wanted := make(map[types.Strategy]bool, len(c.Benchmark.Strategies))
	for _, label := range c.Benchmark.Strategies {
		s, err := types.ParseStrategy(strings.TrimSpace(label))
		if err != nil {
			return nil, err
		}
		wanted[s] = true
	}
	out := make([]types.Strategy, 0, len(wanted))
	for _, s := range types.AllStrategies() {
		if wanted[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	b := c.Benchmark
	if b.InsertCount < 0 {
		return fmt.Errorf("benchmark.insert_count must not be negative, got %d", b.InsertCount)
	}
	if b.BatchSize <= 0 {
		return fmt.Errorf("benchmark.batch_size must be positive, got %d", b.BatchSize)
	}
	if b.PageSkip < 0 {
		return fmt.Errorf("benchmark.page_skip must not be negative, got %d", b.PageSkip)
	}
	if b.PageTake <= 0 {
		return fmt.Errorf("benchmark.page_take must be positive, got %d", b.PageTake)
	}
	if _, err := c.SelectedStrategies(); err != nil {
		return fmt.Errorf("benchmark.strategies: %w", err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxRetries < 0 {
		return fmt.Errorf("database.max_retries must not be negative, got %d", c.Database.MaxRetries)
	}
	if c.Database.BusyTimeout < 0 || c.Database.RetryBaseDelay < 0 {
		return fmt.Errorf("database timeouts must not be negative")
	}

	switch c.Publish.Type {
	case PublishNone:
	case PublishLocal:
		if c.Publish.Path == "" {
			return fmt.Errorf("publish.path is required when publish type is local")
		}
	case PublishS3:
		if c.Publish.S3.Bucket == "" {
			return fmt.Errorf("publish.s3.bucket is required when publish type is s3")
		}
	default:
		return fmt.Errorf("invalid publish type: %s (must be none, local, or s3)", c.Publish.Type)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the IDBENCH_ prefix. Malformed values are
// reported rather than ignored.
func LoadFromEnv(cfg *Config) error {
	var errs []string
	intVar := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not an integer", name, v))
				return
			}
			*dst = n
		}
	}
	boolVar := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not a boolean", name, v))
				return
			}
			*dst = b
		}
	}
	durationVar := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not a duration", name, v))
				return
			}
			*dst = d
		}
	}
	stringVar := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	// Benchmark configuration
	intVar("IDBENCH_INSERT_COUNT", &cfg.Benchmark.InsertCount)
	intVar("IDBENCH_BATCH_SIZE", &cfg.Benchmark.BatchSize)
	intVar("IDBENCH_PAGE_SKIP", &cfg.Benchmark.PageSkip)
	intVar("IDBENCH_PAGE_TAKE", &cfg.Benchmark.PageTake)
	boolVar("IDBENCH_PARALLEL_INSERTS", &cfg.Benchmark.ParallelInserts)
	if v := os.Getenv("IDBENCH_STRATEGIES"); v != "" {
		cfg.Benchmark.Strategies = strings.Split(v, ",")
	}

	// Database configuration
	stringVar("IDBENCH_DB_PATH", &cfg.Database.Path)
	durationVar("IDBENCH_DB_BUSY_TIMEOUT", &cfg.Database.BusyTimeout)
	boolVar("IDBENCH_DB_RESET", &cfg.Database.Reset)
	intVar("IDBENCH_DB_MAX_RETRIES", &cfg.Database.MaxRetries)
	durationVar("IDBENCH_DB_RETRY_BASE_DELAY", &cfg.Database.RetryBaseDelay)

	// Output configuration
	stringVar("IDBENCH_CSV_PATH", &cfg.Output.CSVPath)
	stringVar("IDBENCH_METRICS_PATH", &cfg.Output.MetricsPath)
	boolVar("IDBENCH_CONSOLE", &cfg.Output.Console)

	// Publish configuration
	stringVar("IDBENCH_PUBLISH_TYPE", &cfg.Publish.Type)
	stringVar("IDBENCH_PUBLISH_PATH", &cfg.Publish.Path)
	stringVar("IDBENCH_PUBLISH_PREFIX", &cfg.Publish.Prefix)
	stringVar("IDBENCH_S3_BUCKET", &cfg.Publish.S3.Bucket)
	stringVar("IDBENCH_S3_REGION", &cfg.Publish.S3.Region)
	stringVar("IDBENCH_S3_ENDPOINT", &cfg.Publish.S3.Endpoint)
	boolVar("IDBENCH_S3_USE_PATH_STYLE", &cfg.Publish.S3.UsePathStyle)

	// Log configuration
	stringVar("IDBENCH_LOG_LEVEL", &cfg.Log.Level)
	stringVar("IDBENCH_LOG_FORMAT", &cfg.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EnsureDirectories creates the directories the run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Database.Path),
	}
	if c.Output.CSVPath != "" {
		dirs = append(dirs, filepath.Dir(c.Output.CSVPath))
	}
	if c.Output.MetricsPath != "" {
		dirs = append(dirs, filepath.Dir(c.Output.MetricsPath))
	}
	if c.Publish.Type == PublishLocal {
		dirs = append(dirs, c.Publish.Path)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
