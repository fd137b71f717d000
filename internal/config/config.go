// Package config loads pipeline settings from defaults, an optional YAML
// file, an optional .env file and FETCHPIPE_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go-fetch-pipeline/internal/logger"
	"go-fetch-pipeline/internal/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. FETCHPIPE_PIPELINE_CONCURRENCY_LIMIT
const EnvPrefix = "FETCHPIPE"

// Config is the full application configuration
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      logger.Config  `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Output   OutputConfig   `mapstructure:"output"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// PipelineConfig holds the run settings as they appear in files and env
type PipelineConfig struct {
	ConcurrencyLimit int           `mapstructure:"concurrency_limit"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	Policy           string        `mapstructure:"policy"`
	Arrays           string        `mapstructure:"arrays"`
	UnwrapRootArray  bool          `mapstructure:"unwrap_root_array"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"` // empty disables the sqlite store for CLI runs
}

type OutputConfig struct {
	Dir   string `mapstructure:"dir"`
	Fsync bool   `mapstructure:"fsync"`
}

type HTTPConfig struct {
	UserAgent           string        `mapstructure:"user_agent"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// loaderConfig holds optional file overrides
type loaderConfig struct {
	configFile string
	envFile    string
}

// Option is a functional option for Load
type Option func(*loaderConfig)

// WithConfigFile sets an explicit YAML config file path; empty is ignored
func WithConfigFile(path string) Option {
	return func(lc *loaderConfig) { lc.configFile = path }
}

// WithEnvFile sets a .env file to load before reading the environment. A
// missing file is not an error.
func WithEnvFile(path string) Option {
	return func(lc *loaderConfig) { lc.envFile = path }
}

func setDefaults(v *viper.Viper) {
	def := model.DefaultPipelineConfig()
	v.SetDefault("pipeline.concurrency_limit", def.ConcurrencyLimit)
	v.SetDefault("pipeline.request_timeout", def.PerRequestTimeout)
	v.SetDefault("pipeline.policy", string(def.SchedulingPolicy))
	v.SetDefault("pipeline.arrays", string(def.ArrayPolicy))
	v.SetDefault("pipeline.unwrap_root_array", false)
	v.SetDefault("pipeline.progress_interval", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatConsole)
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.no_color", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.path", "pipeline.db")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.fsync", false)

	v.SetDefault("http.user_agent", "go-fetch-pipeline/1.0")
	v.SetDefault("http.max_idle_conns_per_host", 10)
	v.SetDefault("http.idle_conn_timeout", 90*time.Second)
}

// Load resolves the configuration
func Load(opts ...Option) (*Config, error) {
	var lc loaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.envFile != "" {
		if err := godotenv.Load(lc.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if lc.configFile != "" {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", lc.configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if _, err := c.PipelineConfig(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

// PipelineConfig converts the pipeline section into the run configuration
func (c *Config) PipelineConfig() (model.PipelineConfig, error) {
	policy, err := model.ParsePolicy(c.Pipeline.Policy)
	if err != nil {
		return model.PipelineConfig{}, err
	}
	arrays, err := model.ParseArrayPolicy(c.Pipeline.Arrays)
	if err != nil {
		return model.PipelineConfig{}, err
	}
	pc := model.PipelineConfig{
		ConcurrencyLimit:  c.Pipeline.ConcurrencyLimit,
		PerRequestTimeout: c.Pipeline.RequestTimeout,
		SchedulingPolicy:  policy,
		ArrayPolicy:       arrays,
		UnwrapRootArray:   c.Pipeline.UnwrapRootArray,
	}
	if err := pc.Validate(); err != nil {
		return model.PipelineConfig{}, err
	}
	return pc, nil
}
