// ABOUTME: Configuration loading with global + project YAML files merged field by field
// ABOUTME: Applies ${VAR} expansion, CHATSTREAM_* environment overrides, defaults and validation

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	cslog "github.com/mauromedda/chatstream/internal/log"
)

// Default values applied by WithDefaults.
const (
	DefaultBaseURL        = "https://api.openai.com"
	DefaultModel          = "gpt-4o-mini"
	DefaultLogLevel       = "info"
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = time.Second
	DefaultAttemptTimeout = 2 * time.Minute
	DefaultBufferSize     = 64
	DefaultSentinel       = "\x00"
	DefaultMaxLineBytes   = 1 << 20
)

// Config holds the merged configuration.
type Config struct {
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	System      string  `yaml:"system,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	LogLevel    string  `yaml:"log_level,omitempty"`
	Retry       Retry   `yaml:"retry,omitempty"`
	Stream      Stream  `yaml:"stream,omitempty"`
}

// Retry configures the pre-stream backoff policy. Durations are written as
// Go duration strings ("500ms", "2m").
type Retry struct {
	MaxAttempts    int           `yaml:"max_attempts,omitempty"`
	BaseDelay      time.Duration `yaml:"base_delay,omitempty"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout,omitempty"`
}

// Stream configures the read loop.
type Stream struct {
	BufferSize   int    `yaml:"buffer_size,omitempty"`
	Sentinel     string `yaml:"sentinel,omitempty"`
	MaxLineBytes int    `yaml:"max_line_bytes,omitempty"`
}

// Environment variables that override file values.
const (
	EnvBaseURL  = "CHATSTREAM_BASE_URL"
	EnvAPIKey   = "CHATSTREAM_API_KEY"
	EnvModel    = "CHATSTREAM_MODEL"
	EnvLogLevel = "CHATSTREAM_LOG_LEVEL"
	EnvAttempts = "CHATSTREAM_MAX_ATTEMPTS"
)

// Load reads and merges global and project-local configuration, then applies
// environment overrides and defaults. Missing files are not an error.
func Load(projectRoot string) (*Config, error) {
	global, err := loadFile(GlobalConfigFile())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading global config: %w", err)
	}

	project, err := loadFile(ProjectConfigFile(projectRoot))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return finish(merge(global, project))
}

// LoadFile reads a single configuration file. Unlike Load, the file must exist.
func LoadFile(path string) (*Config, error) {
	c, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return finish(c)
}

func finish(c *Config) (*Config, error) {
	ResolveEnvVars(c)
	if err := applyEnv(c); err != nil {
		return nil, err
	}
	c.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFile reads a Config from a YAML file. Returns zero Config if the file
// does not exist.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cslog.Debug("config: loaded %s", path)
	return &c, nil
}

// merge overlays project values onto global values. Non-zero project values win.
func merge(global, project *Config) *Config {
	if global == nil {
		global = &Config{}
	}
	if project == nil {
		return global
	}

	result := *global

	if project.BaseURL != "" {
		result.BaseURL = project.BaseURL
	}
	if project.APIKey != "" {
		result.APIKey = project.APIKey
	}
	if project.Model != "" {
		result.Model = project.Model
	}
	if project.System != "" {
		result.System = project.System
	}
	if project.MaxTokens != 0 {
		result.MaxTokens = project.MaxTokens
	}
	if project.Temperature != 0 {
		result.Temperature = project.Temperature
	}
	if project.LogLevel != "" {
		result.LogLevel = project.LogLevel
	}

	if project.Retry.MaxAttempts != 0 {
		result.Retry.MaxAttempts = project.Retry.MaxAttempts
	}
	if project.Retry.BaseDelay != 0 {
		result.Retry.BaseDelay = project.Retry.BaseDelay
	}
	if project.Retry.AttemptTimeout != 0 {
		result.Retry.AttemptTimeout = project.Retry.AttemptTimeout
	}

	if project.Stream.BufferSize != 0 {
		result.Stream.BufferSize = project.Stream.BufferSize
	}
	if project.Stream.Sentinel != "" {
		result.Stream.Sentinel = project.Stream.Sentinel
	}
	if project.Stream.MaxLineBytes != 0 {
		result.Stream.MaxLineBytes = project.Stream.MaxLineBytes
	}

	return &result
}

func applyEnv(c *Config) error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAttempts, err)
		}
		c.Retry.MaxAttempts = n
	}
	return nil
}

// WithDefaults fills unset fields.
func (c *Config) WithDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.AttemptTimeout == 0 {
		c.Retry.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}
	if c.Stream.Sentinel == "" {
		c.Stream.Sentinel = DefaultSentinel
	}
	if c.Stream.MaxLineBytes == 0 {
		c.Stream.MaxLineBytes = DefaultMaxLineBytes
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url %q: scheme must be http or https", c.BaseURL)
	}
	if _, ok := cslog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.AttemptTimeout < 0 {
		return errors.New("retry durations must not be negative")
	}
	if c.Stream.BufferSize < 0 {
		return fmt.Errorf("stream.buffer_size must not be negative, got %d", c.Stream.BufferSize)
	}
	if c.Stream.MaxLineBytes < 0 {
		return fmt.Errorf("stream.max_line_bytes must not be negative, got %d", c.Stream.MaxLineBytes)
	}
	if _, err := c.SentinelByte(); err != nil {
		return err
	}
	return nil
}

// SentinelByte returns the configured block sentinel as a single byte.
func (c *Config) SentinelByte() (byte, error) {
	s := c.Stream.Sentinel
	if s == "" {
		s = DefaultSentinel
	}
	if len(s) != 1 || s[0] >= 0x80 {
		return 0, fmt.Errorf("stream.sentinel %q: must be a single ASCII character", c.Stream.Sentinel)
	}
	return s[0], nil
}
