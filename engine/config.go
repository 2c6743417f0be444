package engine

import (
	"time"

	"github.com/99souls/scrapefabric/engine/internal/breaker"
	"github.com/99souls/scrapefabric/engine/internal/gate"
	"github.com/99souls/scrapefabric/engine/internal/orchestrator"
	"github.com/99souls/scrapefabric/engine/internal/proxypool"
	"github.com/99souls/scrapefabric/engine/internal/ratelimit"
	"github.com/99souls/scrapefabric/engine/internal/telemetry/logging"
)

// Config is the fabric's single flat configuration surface, mirroring
// spec.md §6's configuration table. A Config is loaded once at startup
// (see LoadConfig) and, unless HotReload is set, never changes for the
// lifetime of an Engine, matching the teacher's Config/Defaults split
// generalized from pipeline worker counts to this domain's
// gate/limiter/breaker/orchestrator tunables.
type Config struct {
	GlobalConcurrency int   `mapstructure:"global_concurrency" yaml:"global_concurrency"`
	PerDomainLimit    int   `mapstructure:"per_domain_limit" yaml:"per_domain_limit"`
	SlowDomainLimit   int   `mapstructure:"slow_domain_limit" yaml:"slow_domain_limit"`
	SlowLatencyMS     int64 `mapstructure:"slow_latency_ms" yaml:"slow_latency_ms"`
	SlowWindow        int   `mapstructure:"slow_window" yaml:"slow_window"`

	DefaultRPM float64 `mapstructure:"rpm_default" yaml:"rpm_default"`
	SlowRPM    float64 `mapstructure:"rpm_slow" yaml:"rpm_slow"`
	BurstSize  float64 `mapstructure:"burst_size" yaml:"burst_size"`

	ProbeTimeoutMS     int64 `mapstructure:"probe_timeout_ms" yaml:"probe_timeout_ms"`
	FetchTimeoutFastMS int64 `mapstructure:"fetch_timeout_ms_fast" yaml:"fetch_timeout_ms_fast"`
	FetchTimeoutSlowMS int64 `mapstructure:"fetch_timeout_ms_slow" yaml:"fetch_timeout_ms_slow"`
	MaxRetries         int   `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelayMS       int64 `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	CompanyDeadlineMS  int64 `mapstructure:"company_deadline_ms" yaml:"company_deadline_ms"`

	BatchSize         int   `mapstructure:"batch_size" yaml:"batch_size"`
	IntraBatchDelayMS int64 `mapstructure:"intra_batch_delay_ms" yaml:"intra_batch_delay_ms"`
	InterBatchDelayMS int64 `mapstructure:"inter_batch_delay_ms" yaml:"inter_batch_delay_ms"`
	RescueMinChars    int   `mapstructure:"rescue_min_chars" yaml:"rescue_min_chars"`
	RescueMaxAttempts int   `mapstructure:"rescue_max_attempts" yaml:"rescue_max_attempts"`
	MaxSubpages       int   `mapstructure:"max_subpages" yaml:"max_subpages"`

	BreakerThreshold   int   `mapstructure:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerRecoveryMS  int64 `mapstructure:"breaker_recovery_ms" yaml:"breaker_recovery_ms"`
	BreakerHalfOpenMax int   `mapstructure:"breaker_half_open_max" yaml:"breaker_half_open_max"`

	ProxyMinSuccessRate  float64       `mapstructure:"proxy_min_success_rate" yaml:"proxy_min_success_rate"`
	ProxyMinObservations int64         `mapstructure:"proxy_min_observations" yaml:"proxy_min_observations"`
	ProxyHealthCheckURL  string        `mapstructure:"proxy_health_check_url" yaml:"proxy_health_check_url"`
	ProxyHealthCheckEach time.Duration `mapstructure:"proxy_health_check_each" yaml:"proxy_health_check_each"`

	// HotReload arms configx's viper/fsnotify-backed watch (see LoadConfig).
	// When false, a Config is loaded once and never changes, matching
	// spec.md §5's "loaded at startup, immutable" description exactly.
	HotReload bool `mapstructure:"hot_reload" yaml:"hot_reload"`

	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogPretty   bool   `mapstructure:"log_pretty" yaml:"log_pretty"`
	LogFilePath string `mapstructure:"log_file_path" yaml:"log_file_path"`

	MetricsEnabled       bool   `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" yaml:"prometheus_listen_addr"`
	TracingEnabled       bool   `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`

	HealthTTL time.Duration `mapstructure:"health_ttl" yaml:"health_ttl"`
}

// Defaults returns every tunable spec.md §6 names, at the values it
// names.
func Defaults() Config {
	return Config{
		GlobalConcurrency: 200,
		PerDomainLimit:    5,
		SlowDomainLimit:   2,
		SlowLatencyMS:     8000,
		SlowWindow:        20,

		DefaultRPM: 300,
		SlowRPM:    60,
		BurstSize:  60,

		ProbeTimeoutMS:     10000,
		FetchTimeoutFastMS: 12000,
		FetchTimeoutSlowMS: 15000,
		MaxRetries:         1,
		RetryDelayMS:       0,
		CompanyDeadlineMS:  90000,

		BatchSize:         4,
		IntraBatchDelayMS: 0,
		InterBatchDelayMS: 0,
		RescueMinChars:    500,
		RescueMaxAttempts: 3,
		MaxSubpages:       5,

		BreakerThreshold:   12,
		BreakerRecoveryMS:  30000,
		BreakerHalfOpenMax: 3,

		ProxyMinSuccessRate:  0.10,
		ProxyMinObservations: 8,
		ProxyHealthCheckURL:  "https://www.google.com/generate_204",
		ProxyHealthCheckEach: 5 * time.Second,

		HotReload: false,

		LogLevel:  "info",
		LogPretty: false,

		MetricsEnabled:       false,
		PrometheusListenAddr: ":9090",
		TracingEnabled:       false,

		HealthTTL: 2 * time.Second,
	}
}

// Validate rejects configs whose tunables would break invariants that
// gate/ratelimit/breaker/orchestrator assume hold (non-negative caps, a
// positive global concurrency, an achievable breaker threshold).
func (c Config) Validate() error {
	switch {
	case c.GlobalConcurrency <= 0:
		return errConfig("global_concurrency must be positive")
	case c.PerDomainLimit <= 0:
		return errConfig("per_domain_limit must be positive")
	case c.BreakerThreshold <= 0:
		return errConfig("breaker_threshold must be positive")
	case c.MaxSubpages < 0:
		return errConfig("max_subpages must not be negative")
	case c.ProxyMinSuccessRate < 0 || c.ProxyMinSuccessRate > 1:
		return errConfig("proxy_min_success_rate must be in [0,1]")
	}
	return nil
}

// WantsHotReload implements configx.HotReloadable.
func (c Config) WantsHotReload() bool { return c.HotReload }

func (c Config) gateConfig() gate.Config {
	return gate.Config{
		GlobalConcurrency: c.GlobalConcurrency,
		PerDomainLimit:    c.PerDomainLimit,
		SlowDomainLimit:   c.SlowDomainLimit,
		SlowLatencyMS:     c.SlowLatencyMS,
		SlowWindow:        c.SlowWindow,
	}
}

func (c Config) ratelimitConfig() ratelimit.Config {
	return ratelimit.Config{DefaultRPM: c.DefaultRPM, SlowRPM: c.SlowRPM, BurstSize: c.BurstSize}
}

func (c Config) breakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.BreakerThreshold,
		RecoveryTimeout:  time.Duration(c.BreakerRecoveryMS) * time.Millisecond,
		HalfOpenMax:      c.BreakerHalfOpenMax,
	}
}

func (c Config) proxypoolConfig() proxypool.Config {
	return proxypool.Config{
		MinSuccessRate:  c.ProxyMinSuccessRate,
		MinObservations: c.ProxyMinObservations,
		HealthCheckURL:  c.ProxyHealthCheckURL,
		HealthCheckEach: c.ProxyHealthCheckEach,
	}
}

func (c Config) orchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		RescueMinChars:    c.RescueMinChars,
		RescueMaxAttempts: c.RescueMaxAttempts,
		BatchSize:         c.BatchSize,
		MaxSubpages:       c.MaxSubpages,
		ProbeDeadline:     time.Duration(c.ProbeTimeoutMS) * time.Millisecond,
		PerRequestFast:    time.Duration(c.FetchTimeoutFastMS) * time.Millisecond,
		PerRequestSlow:    time.Duration(c.FetchTimeoutSlowMS) * time.Millisecond,
		CompanyDeadline:   time.Duration(c.CompanyDeadlineMS) * time.Millisecond,
		MainPageRetries:   c.MaxRetries,
	}
}

func (c Config) loggingOptions() logging.Options {
	return logging.Options{
		Level:      c.LogLevel,
		Pretty:     c.LogPretty,
		FilePath:   c.LogFilePath,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 28,
	}
}

type configError string

func (e configError) Error() string { return string(e) }

func errConfig(msg string) error { return configError(msg) }
