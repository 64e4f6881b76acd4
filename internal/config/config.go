package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override, e.g.
// SITERELAY_CIPHER_PASSWORD or SITERELAY_SCHEDULER_KEY_SELECT_INTERVAL.
const envPrefix = "SITERELAY"

const defaultConfigPath = "config.yaml"

// CipherConfig controls how obfuscated names are decoded.
type CipherConfig struct {
	Password string `yaml:"password" mapstructure:"password"`
	// NameTable overrides the embedded name table with a YAML file.
	NameTable string `yaml:"name_table,omitempty" mapstructure:"name_table"`
}

// SchedulerConfig controls pacing of the selection/execution loop.
type SchedulerConfig struct {
	KeySelectInterval time.Duration `yaml:"key_select_interval" mapstructure:"key_select_interval"`
	ExecuteDelay      time.Duration `yaml:"execute_delay" mapstructure:"execute_delay"`
	// Seed makes all random draws reproducible when non-zero.
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
	// NavigationQueue is the buffer size of the navigation dispatcher.
	NavigationQueue int `yaml:"navigation_queue" mapstructure:"navigation_queue"`
}

// HTTPConfig controls the configuration fetch client.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RetryMax     int           `yaml:"retry_max" mapstructure:"retry_max"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min" mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max" mapstructure:"retry_wait_max"`
	// RateLimit is in requests per second; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// LoggingConfig selects the zap logger flavour.
type LoggingConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
	// File additionally writes JSON logs to a rotated file.
	File       string `yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus endpoint of the run command.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9102". Empty disables the endpoint.
	Addr string `yaml:"addr,omitempty" mapstructure:"addr"`
}

// Config holds all configuration settings for the relay.
type Config struct {
	Silent   bool   `yaml:"silent" mapstructure:"silent"`
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	// ConfigURL is the remote document location. %CLIENTID is expanded.
	ConfigURL string `yaml:"config_url" mapstructure:"config_url"`
	// CacheFile keeps the last good document for offline starts.
	CacheFile string `yaml:"cache_file,omitempty" mapstructure:"cache_file"`

	Cipher    CipherConfig    `yaml:"cipher" mapstructure:"cipher"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

var (
	// Testing controls whether output is suppressed for testing purposes
	Testing bool
)

// PrintInfo prints informational output unless Testing is set.
func PrintInfo(format string, args ...interface{}) {
	if !Testing {
		fmt.Printf(format, args...)
	}
}

// DefaultConfig returns a configuration with default settings.
func DefaultConfig() *Config {
	return &Config{
		Silent:   false,
		ClientID: "default",
		Cipher: CipherConfig{
			Password: "siterelay",
		},
		Scheduler: SchedulerConfig{
			KeySelectInterval: 3 * time.Second,
			ExecuteDelay:      100 * time.Millisecond,
			NavigationQueue:   1,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			RetryMax:     3,
			RetryWaitMin: 1 * time.Second,
			RetryWaitMax: 30 * time.Second,
			RateLimit:    0,
			UserAgent:    "siterelay/1.0",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: false,
			MaxSizeMB:   10,
			MaxBackups:  3,
			MaxAgeDays:  28,
		},
	}
}

// defaults flattens DefaultConfig into viper keys.
func defaults() map[string]interface{} {
	d := DefaultConfig()
	return map[string]interface{}{
		"silent":                        d.Silent,
		"client_id":                     d.ClientID,
		"config_url":                    d.ConfigURL,
		"cache_file":                    d.CacheFile,
		"cipher.password":               d.Cipher.Password,
		"cipher.name_table":             d.Cipher.NameTable,
		"scheduler.key_select_interval": d.Scheduler.KeySelectInterval,
		"scheduler.execute_delay":       d.Scheduler.ExecuteDelay,
		"scheduler.seed":                d.Scheduler.Seed,
		"scheduler.navigation_queue":    d.Scheduler.NavigationQueue,
		"http.timeout":                  d.HTTP.Timeout,
		"http.retry_max":                d.HTTP.RetryMax,
		"http.retry_wait_min":           d.HTTP.RetryWaitMin,
		"http.retry_wait_max":           d.HTTP.RetryWaitMax,
		"http.rate_limit":               d.HTTP.RateLimit,
		"http.user_agent":               d.HTTP.UserAgent,
		"logging.level":                 d.Logging.Level,
		"logging.development":           d.Logging.Development,
		"logging.file":                  d.Logging.File,
		"logging.max_size_mb":           d.Logging.MaxSizeMB,
		"logging.max_backups":           d.Logging.MaxBackups,
		"logging.max_age_days":          d.Logging.MaxAgeDays,
		"logging.compress":              d.Logging.Compress,
		"metrics.addr":                  d.Metrics.Addr,
	}
}

// LoadConfig reads configuration from file and environment variables on top
// of the defaults. An empty configPath means ./config.yaml, which may be
// absent; an explicitly named file must exist.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
		if !v.GetBool("silent") {
			PrintInfo("Info: Loaded configuration from %s\n", configPath)
		}
	} else if os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("specified config file not found: %s", configPath)
		}
		if !v.GetBool("silent") {
			PrintInfo("Info: Configuration file '%s' not found, using default settings.\n", defaultConfigPath)
		}
	} else {
		return nil, fmt.Errorf("error checking config file %s: %w", configPath, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the relay misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Cipher.Password == "" {
		errs = append(errs, errors.New("cipher.password must not be empty"))
	}
	if c.Scheduler.KeySelectInterval <= 0 {
		errs = append(errs, errors.New("scheduler.key_select_interval must be positive"))
	}
	if c.Scheduler.ExecuteDelay < 0 {
		errs = append(errs, errors.New("scheduler.execute_delay must not be negative"))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("http.rate_limit must not be negative"))
	}
	if c.HTTP.RetryMax < 0 {
		errs = append(errs, errors.New("http.retry_max must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SaveConfig saves the default configuration to a file.
func SaveConfig(configPath string) error {
	cfg := DefaultConfig()
	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshalling default config: %w", err)
	}
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory for config file %s: %w", configPath, err)
	}
	err = os.WriteFile(configPath, yamlData, 0644)
	if err != nil {
		return fmt.Errorf("error writing config file %s: %w", configPath, err)
	}
	PrintInfo("Info: Saved default configuration to %s\n", configPath)
	return nil
}
