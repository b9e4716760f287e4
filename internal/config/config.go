// Package config defines the engine's configuration surface and its viper
// loading. Everything is injected: no package-level state, no ambient
// lookups after process start.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/needtoknow"
)

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug"`
	Info   string `mapstructure:"info"`
	Warn   string `mapstructure:"warn"`
	Error  string `mapstructure:"error"`
	DPanic string `mapstructure:"dpanic"`
	Panic  string `mapstructure:"panic"`
	Fatal  string `mapstructure:"fatal"`
}

// LoggerConfig controls the zap logger and its lumberjack file sink.
type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	AddSource   bool        `mapstructure:"add_source"`
	ServiceName string      `mapstructure:"service_name"`
	Colors      ColorConfig `mapstructure:"colors"`
}

// MQTTConfig configures the pub/sub transport client.
type MQTTConfig struct {
	BrokerURL   string `mapstructure:"broker_url"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	PasswordEnv string `mapstructure:"password_env"`
	// DefaultQoS applies to dissemination reports without a per-recipient
	// override.
	DefaultQoS byte `mapstructure:"default_qos"`
	// SensorQoS maps sensor input classes to their subscription QoS.
	SensorQoS      map[string]byte `mapstructure:"sensor_qos"`
	ConnectTimeout time.Duration   `mapstructure:"connect_timeout"`
}

// ReasonerConfig configures the external LLM threat reasoner.
type ReasonerConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	Model      string        `mapstructure:"model"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
	// RequestsPerMinute bounds outbound reasoner traffic.
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
}

// SyncConfig configures the visualization sync client.
type SyncConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// ArchiveConfig configures the optional postgres audit sink.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// FusionConfig tunes the duplicate predicate.
type FusionConfig struct {
	MaxDistanceM  float64 `mapstructure:"max_distance_m"`
	MaxTimeDeltaS float64 `mapstructure:"max_time_delta_s"`
}

// Config is the full engine configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Reasoner ReasonerConfig `mapstructure:"reasoner"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Fusion   FusionConfig   `mapstructure:"fusion"`

	// RecipientsFile and ThresholdsFile are layered YAML files merged in by
	// Load; their parsed contents land in Recipients and Thresholds.
	RecipientsFile string `mapstructure:"recipients_file"`
	ThresholdsFile string `mapstructure:"thresholds_file"`

	Recipients []schemas.RecipientInfo `mapstructure:"recipients"`
	Thresholds needtoknow.Tables       `mapstructure:"thresholds_tables"`
}

// SetDefaults registers every default on v. Call before reading config
// files so absent keys resolve sanely.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.service_name", "tifda")
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "tifda-engine")
	v.SetDefault("mqtt.default_qos", 0)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("mqtt.sensor_qos", map[string]any{
		"radar": 1, "drone": 1, "radio": 0, "manual": 2, "output": 2,
	})

	v.SetDefault("reasoner.provider", "gemini")
	v.SetDefault("reasoner.model", "gemini-2.0-flash")
	v.SetDefault("reasoner.api_timeout", 30*time.Second)
	v.SetDefault("reasoner.requests_per_minute", 30)
	v.SetDefault("reasoner.temperature", 0.2)
	v.SetDefault("reasoner.max_tokens", 1024)

	v.SetDefault("sync.request_timeout", 5*time.Second)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_delay", time.Second)

	v.SetDefault("fusion.max_distance_m", 500.0)
	v.SetDefault("fusion.max_time_delta_s", 300.0)
}

// NewConfigFromViper unmarshals and validates a Config from v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the main config file (optional), layers the recipient roster
// and threshold tables over it, and returns the validated Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expanding config path: %w", err)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", expanded, err)
		}
	}

	for _, layer := range []struct{ key, target string }{
		{"recipients_file", "recipients"},
		{"thresholds_file", "thresholds_tables"},
	} {
		file := v.GetString(layer.key)
		if file == "" {
			continue
		}
		if !filepath.IsAbs(file) && path != "" {
			file = filepath.Join(filepath.Dir(path), file)
		}
		sub := viper.New()
		sub.SetConfigFile(file)
		if err := sub.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s layer %s: %w", layer.key, file, err)
		}
		if err := v.MergeConfigMap(map[string]any{layer.target: sub.Get(layer.target)}); err != nil {
			return nil, fmt.Errorf("merging %s layer: %w", layer.key, err)
		}
	}

	return NewConfigFromViper(v)
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Fusion.MaxDistanceM <= 0 {
		return fmt.Errorf("fusion.max_distance_m must be positive, got %v", c.Fusion.MaxDistanceM)
	}
	if c.Fusion.MaxTimeDeltaS <= 0 {
		return fmt.Errorf("fusion.max_time_delta_s must be positive, got %v", c.Fusion.MaxTimeDeltaS)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive.dsn is required when the archive is enabled")
	}
	seen := make(map[string]bool, len(c.Recipients))
	for _, r := range c.Recipients {
		if r.RecipientID == "" {
			return fmt.Errorf("recipient with empty recipient_id")
		}
		if seen[r.RecipientID] {
			return fmt.Errorf("duplicate recipient_id %q", r.RecipientID)
		}
		seen[r.RecipientID] = true
		if !r.AccessLevel.Valid() {
			return fmt.Errorf("recipient %q has unknown access_level %q", r.RecipientID, r.AccessLevel)
		}
		if r.AccessLevel == schemas.AccessEnemy && r.AutoDisseminate {
			return fmt.Errorf("recipient %q: enemy_access channels must not auto-disseminate", r.RecipientID)
		}
	}
	return nil
}
