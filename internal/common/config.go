package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Jobs        JobsConfig      `toml:"jobs"`
	Devflow     DevflowConfig   `toml:"devflow"`
	Claude      ClaudeConfig    `toml:"claude"`
	Sources     SourcesConfig   `toml:"sources"`
	Runner      RunnerConfig    `toml:"runner"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// SchedulerConfig controls the cron scan loop that enqueues due sources.
type SchedulerConfig struct {
	Enabled      bool   `toml:"enabled"`
	ScanSchedule string `toml:"scan_schedule"` // Cron expression for the due-source scan
	// DispatchRate caps schedule-triggered job creations per second so a scan
	// that finds many due sources does not flood the executor.
	DispatchRate float64 `toml:"dispatch_rate"`
	DispatchBurst int    `toml:"dispatch_burst"`
}

// JobsConfig contains job ledger and backoff tuning.
type JobsConfig struct {
	// DispatchJitterMaxMs is the upper bound of the random delay before an
	// async job execution starts. Desynchronizes bookkeeping writes when many
	// jobs are created in the same instant; no business meaning.
	DispatchJitterMaxMs int `toml:"dispatch_jitter_max_ms"`
	DefaultFrequencyHours int `toml:"default_frequency_hours"`
	BackoffCapHours       int `toml:"backoff_cap_hours"`
	RateLimitDelayHours   int `toml:"rate_limit_delay_hours"`
	RunTimeout            string `toml:"run_timeout"` // e.g. "10m" - time box per scraper execution
}

// DevflowConfig contains scraper development workflow tuning.
type DevflowConfig struct {
	MaxTestRetries int    `toml:"max_test_retries"`
	SampleLimit    int    `toml:"sample_limit"`     // Max records serialized into the review sample
	GenerateTimeout string `toml:"generate_timeout"` // Time box per code-generation call
}

// ClaudeConfig contains the Anthropic code-generation collaborator settings.
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"` // User must provide API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// SourcesConfig contains seed source file loading configuration.
type SourcesConfig struct {
	SeedDir string `toml:"seed_dir"` // Directory containing source seed files (YAML)
}

// RunnerConfig contains scraper execution settings.
type RunnerConfig struct {
	Interpreter    string `toml:"interpreter"` // Command that executes a scraper program
	UserAgent      string `toml:"user_agent"`
	RequestTimeout string `toml:"request_timeout"`
}

// NewDefaultConfig returns the built-in defaults, overridden by files and env.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/pipeline",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			ScanSchedule:  "*/1 * * * *", // Every minute
			DispatchRate:  5,             // 5 job creations per second
			DispatchBurst: 10,
		},
		Jobs: JobsConfig{
			DispatchJitterMaxMs:   500,
			DefaultFrequencyHours: 24,
			BackoffCapHours:       168, // One week
			RateLimitDelayHours:   6,
			RunTimeout:            "10m",
		},
		Devflow: DevflowConfig{
			MaxTestRetries:  3,
			SampleLimit:     5,
			GenerateTimeout: "5m",
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.2,
		},
		Sources: SourcesConfig{
			SeedDir: "./sources",
		},
		Runner: RunnerConfig{
			Interpreter:    "node",
			UserAgent:      "CampScoutBot/1.0 (+https://campscout.example/bot)",
			RequestTimeout: "30s",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2
// -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CAMPSCOUT_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("CAMPSCOUT_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("CAMPSCOUT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("CAMPSCOUT_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if model := os.Getenv("CAMPSCOUT_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	if retries := os.Getenv("CAMPSCOUT_MAX_TEST_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n > 0 {
			config.Devflow.MaxTestRetries = n
		}
	}

	if dir := os.Getenv("CAMPSCOUT_SOURCES_DIR"); dir != "" {
		config.Sources.SeedDir = dir
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Jobs.DefaultFrequencyHours <= 0 {
		return fmt.Errorf("jobs.default_frequency_hours must be positive")
	}
	if c.Jobs.BackoffCapHours <= 0 {
		return fmt.Errorf("jobs.backoff_cap_hours must be positive")
	}
	if c.Devflow.MaxTestRetries <= 0 {
		return fmt.Errorf("devflow.max_test_retries must be positive")
	}
	if c.Scheduler.DispatchRate <= 0 {
		return fmt.Errorf("scheduler.dispatch_rate must be positive")
	}
	return nil
}
