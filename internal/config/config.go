package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all dotminer configuration.
type Config struct {
	// Detection settings
	Detect DetectConfig `yaml:"detect"`

	// Sandbox execution settings
	Sandbox SandboxConfig `yaml:"sandbox"`

	// DOT validation settings
	Validate ValidateConfig `yaml:"validate"`

	// Output settings
	Output OutputConfig `yaml:"output"`

	// Pipeline concurrency settings
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DetectConfig configures the FSM pattern detector.
type DetectConfig struct {
	// Candidates below this confidence are dropped before extraction.
	ConfidenceFloor float64 `yaml:"confidence_floor"`

	// Maximum context snippet size in bytes.
	MaxContextBytes int `yaml:"max_context_bytes"`
}

// SandboxConfig configures the isolated harness execution.
type SandboxConfig struct {
	// Python interpreter used to run generated harnesses.
	Interpreter string `yaml:"interpreter"`

	// Wall-clock timeout for one harness execution.
	Timeout string `yaml:"timeout"`

	// Maximum captured bytes per output stream.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// Wrap executions in "unshare -rn" when available to cut network access.
	IsolateNetwork bool `yaml:"isolate_network"`
}

// ValidateConfig configures the Graphviz syntax checker.
type ValidateConfig struct {
	// Checker binary, normally "dot".
	Checker string `yaml:"checker"`

	// Output format passed as -T<format>; the rendering is discarded.
	Format string `yaml:"format"`

	// Timeout for one checker invocation.
	Timeout string `yaml:"timeout"`

	// Treat checker warnings as validation failures.
	Strict bool `yaml:"strict"`

	// LRU cache capacity for validation results.
	CacheSize int `yaml:"cache_size"`
}

// OutputConfig configures the sink and provenance metadata.
type OutputConfig struct {
	// Append-only JSONL sink path.
	SinkPath string `yaml:"sink_path"`

	// SQLite run-statistics database path.
	DatabasePath string `yaml:"database_path"`

	// Prefix for content-hash record ids.
	IDPrefix string `yaml:"id_prefix"`

	// Attribution for extracted records.
	SourceRepo string `yaml:"source_repo"`
	SourceURL  string `yaml:"source_url"`
	License    string `yaml:"license"`
}

// PipelineConfig configures worker pool sizes.
type PipelineConfig struct {
	// Parallel file detection/extraction workers. 0 means GOMAXPROCS.
	DetectWorkers int `yaml:"detect_workers"`

	// Concurrent sandbox child processes. Kept small: each one is a
	// full interpreter process.
	SandboxWorkers int `yaml:"sandbox_workers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Detect: DetectConfig{
			ConfidenceFloor: 0.8,
			MaxContextBytes: 2000,
		},
		Sandbox: SandboxConfig{
			Interpreter:    "python3",
			Timeout:        "30s",
			MaxOutputBytes: 64 * 1024,
			IsolateNetwork: true,
		},
		Validate: ValidateConfig{
			Checker:   "dot",
			Format:    "png",
			Timeout:   "10s",
			Strict:    false,
			CacheSize: 1000,
		},
		Output: OutputConfig{
			SinkPath:     "data/pairs.jsonl",
			DatabasePath: "data/dotminer.db",
			IDPrefix:     "fsm",
			SourceRepo:   "local",
			License:      "unknown",
		},
		Pipeline: PipelineConfig{
			DetectWorkers:  runtime.GOMAXPROCS(0),
			SandboxWorkers: 4,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist. Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies DOTMINER_* environment variables on top of
// file/default values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOTMINER_INTERPRETER"); v != "" {
		c.Sandbox.Interpreter = v
	}
	if v := os.Getenv("DOTMINER_CHECKER"); v != "" {
		c.Validate.Checker = v
	}
	if v := os.Getenv("DOTMINER_SINK"); v != "" {
		c.Output.SinkPath = v
	}
	if v := os.Getenv("DOTMINER_DB"); v != "" {
		c.Output.DatabasePath = v
	}
	if v := os.Getenv("DOTMINER_SANDBOX_TIMEOUT"); v != "" {
		c.Sandbox.Timeout = v
	}
	if v := os.Getenv("DOTMINER_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Validate.Strict = b
		}
	}
	if v := os.Getenv("DOTMINER_SANDBOX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.SandboxWorkers = n
		}
	}
}

// Check validates configuration ranges and timeout syntax.
func (c *Config) Check() error {
	if c.Detect.ConfidenceFloor < 0 || c.Detect.ConfidenceFloor > 1 {
		return fmt.Errorf("detect.confidence_floor must be in [0,1], got %v", c.Detect.ConfidenceFloor)
	}
	if c.Detect.MaxContextBytes <= 0 {
		return fmt.Errorf("detect.max_context_bytes must be positive")
	}
	if c.Sandbox.Interpreter == "" {
		return fmt.Errorf("sandbox.interpreter is required")
	}
	if c.Validate.Checker == "" {
		return fmt.Errorf("validate.checker is required")
	}
	if c.Validate.CacheSize <= 0 {
		return fmt.Errorf("validate.cache_size must be positive")
	}
	if c.Pipeline.SandboxWorkers <= 0 {
		return fmt.Errorf("pipeline.sandbox_workers must be positive")
	}
	sandboxTimeout, err := c.SandboxTimeout()
	if err != nil {
		return fmt.Errorf("sandbox.timeout: %w", err)
	}
	checkerTimeout, err := c.CheckerTimeout()
	if err != nil {
		return fmt.Errorf("validate.timeout: %w", err)
	}
	if checkerTimeout > sandboxTimeout {
		return fmt.Errorf("validate.timeout (%s) must not exceed sandbox.timeout (%s)",
			checkerTimeout, sandboxTimeout)
	}
	return nil
}

// SandboxTimeout parses the sandbox timeout duration.
func (c *Config) SandboxTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Sandbox.Timeout)
}

// CheckerTimeout parses the checker timeout duration.
func (c *Config) CheckerTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Validate.Timeout)
}
