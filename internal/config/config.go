// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider identifies this server as an Organization, carried in every
// response header and attributed on paired-service results.
type Provider struct {
	Name        string `mapstructure:"name"`
	URI         string `mapstructure:"uri"`
	Description string `mapstructure:"description"`
	Logo        string `mapstructure:"logo"`
	Version     string `mapstructure:"version"`
}

// SchemaVersionConfig is the {major,minor} pair this server speaks.
type SchemaVersionConfig struct {
	Major int `mapstructure:"major"`
	Minor int `mapstructure:"minor"`
}

// JobsManager configures the Redis-backed persistent uuid -> job store.
type JobsManager struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	PersistentJobTTL   time.Duration `mapstructure:"persistent_job_ttl"`
}

// ServersManager lists the federation peers this server knows about at
// startup.
type ServersManager struct {
	Servers []ExternalServerConfig `mapstructure:"servers"`
}

// ExternalServerConfig is one statically-configured peer.
type ExternalServerConfig struct {
	Name string `mapstructure:"name"`
	URI  string `mapstructure:"uri"`
}

// Registry configures plugin/reference service discovery.
type Registry struct {
	ServicesDir       string        `mapstructure:"services_dir"`
	ReferencesDir     string        `mapstructure:"references_dir"`
	ConfigDir         string        `mapstructure:"config_dir"`
	DisabledServices  []string      `mapstructure:"disabled_services"`
	HotReload         bool          `mapstructure:"hot_reload"`
	ReloadDebounce    time.Duration `mapstructure:"reload_debounce"`
}

// Federation configures outbound paired-service dispatch behaviour.
type Federation struct {
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	CircuitBreaker     CircuitBreaker `mapstructure:"circuit_breaker"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

// Audit configures the per-request audit log (rotated with lumberjack).
type Audit struct {
	Enabled      bool   `mapstructure:"enabled"`
	Path         string `mapstructure:"path"`
	RotateSizeMB int    `mapstructure:"rotate_size_mb"`
	MaxBackups   int    `mapstructure:"max_backups"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

type ObservabilityConfig struct {
	MetricsPort   int           `mapstructure:"metrics_port"`
	LogLevel      string        `mapstructure:"log_level"`
	Tracing       TracingConfig `mapstructure:"tracing"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// Observability is a backwards-compatible alias.
type Observability = ObservabilityConfig

// Config is the decoded shape of grassroots.config.
type Config struct {
	Provider       Provider            `mapstructure:"provider"`
	Schema         SchemaVersionConfig `mapstructure:"schema"`
	JobsManager    JobsManager         `mapstructure:"jobs_manager"`
	ServersManager ServersManager      `mapstructure:"servers_manager"`
	Registry       Registry            `mapstructure:"registry"`
	Federation     Federation          `mapstructure:"federation"`
	Audit          Audit               `mapstructure:"audit"`
	Observability  Observability       `mapstructure:"observability"`
	AdminJobsURI   string              `mapstructure:"admin_jobs_uri"`
	ListenAddr     string              `mapstructure:"listen_addr"`
}

func defaultConfig() *Config {
	return &Config{
		Provider: Provider{
			Name:        "grassroots-server",
			URI:         "http://localhost:8080",
			Description: "A Grassroots service orchestration server",
			Version:     "1.0.0",
		},
		Schema: SchemaVersionConfig{Major: 1, Minor: 0},
		JobsManager: JobsManager{
			Addr:             "localhost:6379",
			KeyPrefix:        "grassroots:jobs",
			DialTimeout:      5 * time.Second,
			ReadTimeout:      3 * time.Second,
			WriteTimeout:     3 * time.Second,
			MaxRetries:       3,
			PersistentJobTTL: 7 * 24 * time.Hour,
		},
		Registry: Registry{
			ServicesDir:    "./services",
			ReferencesDir:  "./references",
			ConfigDir:      "./config",
			HotReload:      true,
			ReloadDebounce: 500 * time.Millisecond,
		},
		Federation: Federation{
			RequestTimeout:     30 * time.Second,
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
			CircuitBreaker: CircuitBreaker{
				FailureThreshold: 0.5,
				Window:           1 * time.Minute,
				CooldownPeriod:   30 * time.Second,
				MinSamples:       5,
			},
		},
		Audit: Audit{
			Enabled:      true,
			Path:         "./log/audit.log",
			RotateSizeMB: 100,
			MaxBackups:   5,
		},
		Observability: Observability{
			MetricsPort:    9090,
			LogLevel:       "info",
			Tracing:        TracingConfig{Enabled: false},
			SampleInterval: 2 * time.Second,
		},
		ListenAddr: ":8080",
	}
}

// Load reads grassroots.config (YAML) with env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GRASSROOTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("provider.name", def.Provider.Name)
	v.SetDefault("provider.uri", def.Provider.URI)
	v.SetDefault("provider.description", def.Provider.Description)
	v.SetDefault("provider.version", def.Provider.Version)

	v.SetDefault("schema.major", def.Schema.Major)
	v.SetDefault("schema.minor", def.Schema.Minor)

	v.SetDefault("jobs_manager.addr", def.JobsManager.Addr)
	v.SetDefault("jobs_manager.key_prefix", def.JobsManager.KeyPrefix)
	v.SetDefault("jobs_manager.dial_timeout", def.JobsManager.DialTimeout)
	v.SetDefault("jobs_manager.read_timeout", def.JobsManager.ReadTimeout)
	v.SetDefault("jobs_manager.write_timeout", def.JobsManager.WriteTimeout)
	v.SetDefault("jobs_manager.max_retries", def.JobsManager.MaxRetries)
	v.SetDefault("jobs_manager.persistent_job_ttl", def.JobsManager.PersistentJobTTL)

	v.SetDefault("registry.services_dir", def.Registry.ServicesDir)
	v.SetDefault("registry.references_dir", def.Registry.ReferencesDir)
	v.SetDefault("registry.config_dir", def.Registry.ConfigDir)
	v.SetDefault("registry.hot_reload", def.Registry.HotReload)
	v.SetDefault("registry.reload_debounce", def.Registry.ReloadDebounce)

	v.SetDefault("federation.request_timeout", def.Federation.RequestTimeout)
	v.SetDefault("federation.rate_limit_per_second", def.Federation.RateLimitPerSecond)
	v.SetDefault("federation.rate_limit_burst", def.Federation.RateLimitBurst)
	v.SetDefault("federation.circuit_breaker.failure_threshold", def.Federation.CircuitBreaker.FailureThreshold)
	v.SetDefault("federation.circuit_breaker.window", def.Federation.CircuitBreaker.Window)
	v.SetDefault("federation.circuit_breaker.cooldown_period", def.Federation.CircuitBreaker.CooldownPeriod)
	v.SetDefault("federation.circuit_breaker.min_samples", def.Federation.CircuitBreaker.MinSamples)

	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.path", def.Audit.Path)
	v.SetDefault("audit.rotate_size_mb", def.Audit.RotateSizeMB)
	v.SetDefault("audit.max_backups", def.Audit.MaxBackups)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.sample_interval", def.Observability.SampleInterval)

	v.SetDefault("listen_addr", def.ListenAddr)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Open Question resolution: a successful load never
	// returns a nil Config; Validate always runs against a concrete value.
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Provider.Name == "" {
		return fmt.Errorf("provider.name must be set")
	}
	if cfg.Provider.URI == "" {
		return fmt.Errorf("provider.uri must be set")
	}
	if cfg.Schema.Major < 0 || cfg.Schema.Minor < 0 {
		return fmt.Errorf("schema.major/minor must be >= 0")
	}
	if cfg.JobsManager.Addr == "" {
		return fmt.Errorf("jobs_manager.addr must be set")
	}
	if cfg.Federation.RateLimitPerSecond <= 0 {
		return fmt.Errorf("federation.rate_limit_per_second must be > 0")
	}
	if cfg.Federation.CircuitBreaker.FailureThreshold <= 0 || cfg.Federation.CircuitBreaker.FailureThreshold > 1 {
		return fmt.Errorf("federation.circuit_breaker.failure_threshold must be in (0,1]")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
