// Package config defines the application configuration, loaded through Viper
// from config.yaml, environment variables (TYPEPROBE_*) and CLI flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/SumedhJ28/typespeed-ai-anticheat/internal/probe"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Probe    ProbeConfig    `mapstructure:"probe" yaml:"probe"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the console color names for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser collaborator.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// SelectorsConfig locates the pieces of the page under test. The WPM and
// accuracy selectors may be CSS or XPath.
type SelectorsConfig struct {
	TargetText     string `mapstructure:"target_text" yaml:"target_text"`
	Input          string `mapstructure:"input" yaml:"input"`
	ResultWPM      string `mapstructure:"result_wpm" yaml:"result_wpm"`
	ResultAccuracy string `mapstructure:"result_accuracy" yaml:"result_accuracy"`
}

// ProbeConfig carries every runtime setting of a probe run.
type ProbeConfig struct {
	Mode       string `mapstructure:"mode" yaml:"mode"`
	Iterations int    `mapstructure:"iterations" yaml:"iterations"`
	URL        string `mapstructure:"url" yaml:"url"`

	// Phrase overrides the page-provided target text when non-empty.
	Phrase string `mapstructure:"phrase" yaml:"phrase"`

	// Seed fixes the run RNG; 0 means derive from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	// human_like tunables.
	MeanDelayMs   float64 `mapstructure:"mean_delay_ms" yaml:"mean_delay_ms"`
	DelayStdDevMs float64 `mapstructure:"delay_stddev_ms" yaml:"delay_stddev_ms"`
	MinDelayMs    float64 `mapstructure:"min_delay_ms" yaml:"min_delay_ms"`
	ErrorRate     float64 `mapstructure:"error_rate" yaml:"error_rate"`

	// bot_obvious tunable.
	FixedDelayMs int `mapstructure:"fixed_delay_ms" yaml:"fixed_delay_ms"`

	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	OutPrefix string `mapstructure:"out_prefix" yaml:"out_prefix"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IterationTimeout  time.Duration `mapstructure:"iteration_timeout" yaml:"iteration_timeout"`
	ResultWait        time.Duration `mapstructure:"result_wait" yaml:"result_wait"`
	ResultPoll        time.Duration `mapstructure:"result_poll" yaml:"result_poll"`

	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// DatabaseConfig enables the optional Postgres outcome store when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "typeprobe")
	v.SetDefault("logger.log_file", "typeprobe.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Probe --
	v.SetDefault("probe.mode", string(probe.ProfileHumanLike))
	v.SetDefault("probe.iterations", 1)
	v.SetDefault("probe.url", "https://typespeedai.com/")
	v.SetDefault("probe.seed", 0)
	v.SetDefault("probe.mean_delay_ms", 120.0)
	v.SetDefault("probe.delay_stddev_ms", 45.0)
	v.SetDefault("probe.min_delay_ms", 35.0)
	v.SetDefault("probe.error_rate", 0.02)
	v.SetDefault("probe.fixed_delay_ms", 5)
	v.SetDefault("probe.output_dir", "data/raw_logs")
	v.SetDefault("probe.out_prefix", "run")
	v.SetDefault("probe.navigation_timeout", "30s")
	v.SetDefault("probe.iteration_timeout", "5m")
	v.SetDefault("probe.result_wait", "15s")
	v.SetDefault("probe.result_poll", "250ms")
	v.SetDefault("probe.selectors.target_text", "div.text-display-area")
	v.SetDefault("probe.selectors.input", "#typing-input")
	v.SetDefault("probe.selectors.result_wpm",
		"//div[.//p[normalize-space(.)='Words per minute'] or .//div[normalize-space(.)='WPM']]//div[contains(@class,'text-2xl') and contains(@class,'font-bold')]")
	v.SetDefault("probe.selectors.result_accuracy",
		"#typing-practice-card .grid > div:nth-child(2) .text-2xl.font-bold.text-primary")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Profile materializes the immutable BehaviorProfile for this run. The
// returned profile is validated; bad parameters surface here, before any
// iteration starts.
func (c *Config) Profile() (probe.BehaviorProfile, error) {
	tag, err := probe.ParseProfileTag(c.Probe.Mode)
	if err != nil {
		return probe.BehaviorProfile{}, err
	}
	p := probe.BehaviorProfile{
		Tag:           tag,
		MeanDelayMs:   c.Probe.MeanDelayMs,
		DelayStdDevMs: c.Probe.DelayStdDevMs,
		MinDelayMs:    c.Probe.MinDelayMs,
		ErrorRate:     c.Probe.ErrorRate,
		FixedDelayMs:  c.Probe.FixedDelayMs,
	}
	if err := p.Validate(); err != nil {
		return probe.BehaviorProfile{}, err
	}
	return p, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Probe.Iterations <= 0 {
		return fmt.Errorf("probe.iterations must be a positive integer")
	}
	if c.Probe.URL == "" {
		return fmt.Errorf("probe.url is required")
	}
	if c.Probe.Selectors.Input == "" {
		return fmt.Errorf("probe.selectors.input is required")
	}
	if c.Probe.NavigationTimeout <= 0 || c.Probe.IterationTimeout <= 0 || c.Probe.ResultWait <= 0 {
		return fmt.Errorf("probe timeouts must be positive durations")
	}
	if _, err := c.Profile(); err != nil {
		return err
	}
	return nil
}
