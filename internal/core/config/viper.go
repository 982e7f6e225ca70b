package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"host":          "scrub_api.host",
	"port":          "scrub_api.port",
	"data-dir":      "scrub_api.data_dir",
	"metrics-port":  "scrub_api.metrics_port",
	"stop-on-deny":  "scrub_api.stop_on_deny",
	"workers":       "scrub_api.workers",
	"max-batch":     "scrub_api.max_batch_size",
	"budget":        "scrub_api.conflict_budget",
	"max-samples":   "scrub_api.max_sample_size",
	"test-timeout":  "scrub_api.test_timeout",
	"conflict-wait": "scrub_api.conflict_timeout",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence. flags may be
// nil; only flags the user changed override lower layers.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*ScrubAPIConfig, error) {
	v := viper.New()

	d := DefaultScrubAPIConfig()
	v.SetDefault("scrub_api.host", d.Host)
	v.SetDefault("scrub_api.port", d.Port)
	v.SetDefault("scrub_api.max_connections", d.MaxConnections)
	v.SetDefault("scrub_api.request_timeout", d.RequestTimeout.String())
	v.SetDefault("scrub_api.max_batch_size", d.MaxBatchSize)
	v.SetDefault("scrub_api.data_dir", d.DataDir)
	v.SetDefault("scrub_api.metrics_port", d.MetricsPort)
	v.SetDefault("scrub_api.stop_on_deny", d.StopOnDeny)
	v.SetDefault("scrub_api.workers", d.Workers)
	v.SetDefault("scrub_api.conflict_budget", d.ConflictBudget)
	v.SetDefault("scrub_api.conflict_timeout", d.ConflictTimeout.String())
	v.SetDefault("scrub_api.max_sample_size", d.MaxSampleSize)
	v.SetDefault("scrub_api.test_timeout", d.TestTimeout.String())

	// Bind environment variables with CS_ prefix
	v.SetEnvPrefix("CS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &ScrubAPIConfig{
		Host:            v.GetString("scrub_api.host"),
		Port:            v.GetInt("scrub_api.port"),
		MaxConnections:  v.GetInt("scrub_api.max_connections"),
		RequestTimeout:  v.GetDuration("scrub_api.request_timeout"),
		MaxBatchSize:    v.GetInt("scrub_api.max_batch_size"),
		DataDir:         v.GetString("scrub_api.data_dir"),
		MetricsPort:     v.GetInt("scrub_api.metrics_port"),
		StopOnDeny:      v.GetBool("scrub_api.stop_on_deny"),
		Workers:         v.GetInt("scrub_api.workers"),
		ConflictBudget:  v.GetInt("scrub_api.conflict_budget"),
		ConflictTimeout: v.GetDuration("scrub_api.conflict_timeout"),
		MaxSampleSize:   v.GetInt("scrub_api.max_sample_size"),
		TestTimeout:     v.GetDuration("scrub_api.test_timeout"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port ranges and positive limits.
func validateConfig(cfg *ScrubAPIConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535, got %d", cfg.MetricsPort)
	}
	if cfg.MetricsPort != 0 && cfg.MetricsPort == cfg.Port {
		return fmt.Errorf("metrics_port must differ from port %d", cfg.Port)
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.MaxBatchSize)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.ConflictBudget < 0 {
		return fmt.Errorf("conflict_budget must not be negative, got %d", cfg.ConflictBudget)
	}
	if cfg.ConflictTimeout <= 0 {
		return fmt.Errorf("conflict_timeout must be positive, got %v", cfg.ConflictTimeout)
	}
	if cfg.MaxSampleSize <= 0 {
		return fmt.Errorf("max_sample_size must be positive, got %d", cfg.MaxSampleSize)
	}
	if cfg.TestTimeout <= 0 {
		return fmt.Errorf("test_timeout must be positive, got %v", cfg.TestTimeout)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. InConfig
// ignores the environment, so CS_HMAC_SECRET itself never trips the check.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("scrub_api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use CS_HMAC_SECRET environment variable)")
	}
	return nil
}
