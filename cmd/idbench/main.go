// Package main implements the idbench binary.
// It benchmarks bulk inserts and ordered page queries across primary-key
// strategies on SQLite and writes the timings as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/idbench/idbench/internal/app"
	"github.com/idbench/idbench/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// flags holds command-line overrides. Zero values leave the configuration
// untouched.
type flags struct {
	configFile  string
	envFile     string
	insertCount int
	batchSize   int
	pageSkip    int
	pageTake    int
	dbPath      string
	csvPath     string
	metricsPath string
	strategies  string
	publish     string
	parallel    bool
	logLevel    string
	showVersion bool
	showHelp    bool
}

func main() {
	var f flags

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.envFile, "env-file", ".env", "Environment file to load before reading IDBENCH_* variables")
	flag.IntVar(&f.insertCount, "insert-count", 0, "Records inserted per strategy")
	flag.IntVar(&f.batchSize, "batch-size", 0, "Records per bulk insert")
	flag.IntVar(&f.pageSkip, "page-skip", -1, "Ordered rows skipped by the query benchmark")
	flag.IntVar(&f.pageTake, "page-take", 0, "Rows returned by the query benchmark")
	flag.StringVar(&f.dbPath, "db", "", "SQLite database file")
	flag.StringVar(&f.csvPath, "csv", "", "Result CSV file")
	flag.StringVar(&f.metricsPath, "metrics", "", "Prometheus textfile to write at the end of the run")
	flag.StringVar(&f.strategies, "strategies", "", "Comma-separated strategy labels (default all)")
	flag.StringVar(&f.publish, "publish", "", "Publish target: none, local, s3")
	flag.BoolVar(&f.parallel, "parallel", false, "Run insert phases of all strategies concurrently")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&f.showVersion, "version", false, "Show version information")
	flag.BoolVar(&f.showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "idbench - primary key strategy benchmark\n\n")
		fmt.Fprintf(os.Stderr, "Usage: idbench [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  idbench --insert-count 100000 --batch-size 1000\n")
		fmt.Fprintf(os.Stderr, "  idbench --strategies INT,GUIDv7 --page-skip 5000 --page-take 100\n")
		fmt.Fprintf(os.Stderr, "  idbench --config /etc/idbench/config.yaml --publish s3\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  IDBENCH_INSERT_COUNT    Records inserted per strategy\n")
		fmt.Fprintf(os.Stderr, "  IDBENCH_BATCH_SIZE      Records per bulk insert\n")
		fmt.Fprintf(os.Stderr, "  IDBENCH_PAGE_SKIP       Ordered rows skipped by the query\n")
		fmt.Fprintf(os.Stderr, "  IDBENCH_PAGE_TAKE       Rows returned by the query\n")
		fmt.Fprintf(os.Stderr, "  IDBENCH_DB_PATH         SQLite database file\n")
		fmt.Fprintf(os.Stderr, "  IDBENCH_PUBLISH_TYPE    Publish target (none, local, s3)\n")
		fmt.Fprintf(os.Stderr, "  IDBENCH_S3_BUCKET       Bucket for s3 publishing\n")
	}

	flag.Parse()

	if f.showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if f.showVersion {
		fmt.Printf("idbench version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// A missing .env is normal; only an explicitly requested one must exist.
	if err := godotenv.Load(f.envFile); err != nil && isSet("env-file") {
		log.Fatalf("Failed to load env file: %v", err)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if _, err := application.Run(ctx); err != nil {
		stop()
		log.Printf("Benchmark failed: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	// Apply command line flags (highest priority)
	if f.insertCount > 0 {
		cfg.Benchmark.InsertCount = f.insertCount
	}
	if f.batchSize > 0 {
		cfg.Benchmark.BatchSize = f.batchSize
	}
	if f.pageSkip >= 0 {
		cfg.Benchmark.PageSkip = f.pageSkip
	}
	if f.pageTake > 0 {
		cfg.Benchmark.PageTake = f.pageTake
	}
	if f.parallel {
		cfg.Benchmark.ParallelInserts = true
	}
	if f.strategies != "" {
		cfg.Benchmark.Strategies = strings.Split(f.strategies, ",")
	}
	if f.dbPath != "" {
		cfg.Database.Path = f.dbPath
	}
	if f.csvPath != "" {
		cfg.Output.CSVPath = f.csvPath
	}
	if f.metricsPath != "" {
		cfg.Output.MetricsPath = f.metricsPath
	}
	if f.publish != "" {
		cfg.Publish.Type = f.publish
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	return cfg, nil
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}
