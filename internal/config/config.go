package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the takeoff service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Detection DetectionConfig `mapstructure:"detection"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Takeoff   TakeoffConfig   `mapstructure:"takeoff"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string   `mapstructure:"address"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LLMConfig holds language model settings for page identification
type LLMConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Timeout   int    `mapstructure:"timeout"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// DetectionConfig holds vision detection backend settings
type DetectionConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	Timeout          int    `mapstructure:"timeout"`
	BreakerFailures  int    `mapstructure:"breaker_failures"`
	BreakerCooldown  int    `mapstructure:"breaker_cooldown"`
}

// OCRConfig holds the external text-extraction service settings
type OCRConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Timeout  int    `mapstructure:"timeout"`
	CacheTTL int    `mapstructure:"cache_ttl"` // Hours before cached page text expires
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// TakeoffConfig holds measurement and workflow tuning
type TakeoffConfig struct {
	DefaultScaleFactor float64 `mapstructure:"default_scale_factor"` // Real units per pixel when uncalibrated
	ClosureTolerance   float64 `mapstructure:"closure_tolerance"`    // Pixels within which a polygon closes on its first point
	DebounceMillis     int     `mapstructure:"debounce_millis"`      // Window collapsing a rapid double completion
	PollIntervalMillis int     `mapstructure:"poll_interval_millis"` // Automated-run progress cadence
	MaxPollAttempts    int     `mapstructure:"max_poll_attempts"`    // Polls before the run is declared timed out
	ReconcileSchedule  string  `mapstructure:"reconcile_schedule"`   // Cron spec for automated-run summary refresh
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)

	if configPath == "" {
		configPath = filepath.Join(dataDir, "takeoff.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (TAKEOFF_SERVER_PORT, TAKEOFF_LLM_API_KEY, etc.)
	v.SetEnvPrefix("TAKEOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.timeout", 60)
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("detection.timeout", 120)
	v.SetDefault("detection.breaker_failures", 3)
	v.SetDefault("detection.breaker_cooldown", 30)

	v.SetDefault("ocr.timeout", 60)
	v.SetDefault("ocr.cache_ttl", 24)

	// 1 pixel = 1/12 real unit when a document was never calibrated
	v.SetDefault("takeoff.default_scale_factor", 1.0/12.0)
	v.SetDefault("takeoff.closure_tolerance", 10.0)
	v.SetDefault("takeoff.debounce_millis", 300)
	v.SetDefault("takeoff.poll_interval_millis", 1000)
	v.SetDefault("takeoff.max_poll_attempts", 300)
	v.SetDefault("takeoff.reconcile_schedule", "@every 5m")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "takeoff")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "takeoff")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Takeoff.DefaultScaleFactor <= 0 {
		return fmt.Errorf("default_scale_factor must be positive")
	}
	if cfg.Takeoff.PollIntervalMillis <= 0 {
		return fmt.Errorf("poll_interval_millis must be positive")
	}
	if cfg.Takeoff.MaxPollAttempts <= 0 {
		return fmt.Errorf("max_poll_attempts must be positive")
	}
	return nil
}
