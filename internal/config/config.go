// Package config loads the YAML configuration by environment name.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the serendex API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Engine    EngineConfig    `yaml:"engine"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	QueryInstruction string `yaml:"query_instruction"`
	DocInstruction   string `yaml:"document_instruction"`
}

// ModeConfig holds per-mode noise and candidate pool tuning.
type ModeConfig struct {
	NoiseLevel float64 `yaml:"noise_level"`
	PoolSize   int     `yaml:"pool_size"`
}

// WeightsConfig holds the initial ranking weight vector. All-zero falls
// back to the engine defaults.
type WeightsConfig struct {
	Vector    float64 `yaml:"vector"`
	Text      float64 `yaml:"text"`
	Temporal  float64 `yaml:"temporal"`
	Diversity float64 `yaml:"diversity"`
	Project   float64 `yaml:"project"`
	Type      float64 `yaml:"type"`
}

// EngineConfig holds retrieval engine tuning.
type EngineConfig struct {
	// Dimensions pins the collection vector dimension; 0 discovers it
	// from the first stored vector.
	Dimensions     int                   `yaml:"dimensions"`
	CacheSize      int                   `yaml:"cache_size"`
	CacheTTLSec    int                   `yaml:"cache_ttl_sec"`
	TextWindow     int                   `yaml:"text_window"`
	ClusterWindow  int                   `yaml:"cluster_window"`
	ReindexWorkers int                   `yaml:"reindex_workers"`
	ReindexLimit   int                   `yaml:"reindex_limit"`
	Modes          map[string]ModeConfig `yaml:"modes"`
	Weights        WeightsConfig         `yaml:"weights"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Engine.CacheSize <= 0 {
		c.Engine.CacheSize = 1000
	}
	if c.Engine.CacheTTLSec <= 0 {
		c.Engine.CacheTTLSec = 3600
	}
	if c.Engine.TextWindow <= 0 {
		c.Engine.TextWindow = 100
	}
	if c.Engine.ClusterWindow <= 0 {
		c.Engine.ClusterWindow = 10000
	}
	if c.Engine.ReindexWorkers <= 0 {
		c.Engine.ReindexWorkers = 4
	}
	if c.Engine.ReindexLimit <= 0 {
		c.Engine.ReindexLimit = 10000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Engine.Dimensions < 0 {
		return fmt.Errorf("engine.dimensions must not be negative, got %d", c.Engine.Dimensions)
	}
	for name, m := range c.Engine.Modes {
		if m.NoiseLevel < 0 || m.NoiseLevel > 1 {
			return fmt.Errorf("engine.modes.%s.noise_level must be in [0,1], got %f", name, m.NoiseLevel)
		}
		if m.PoolSize <= 0 {
			return fmt.Errorf("engine.modes.%s.pool_size must be positive, got %d", name, m.PoolSize)
		}
	}
	w := c.Engine.Weights
	for _, v := range []float64{w.Vector, w.Text, w.Temporal, w.Diversity, w.Project, w.Type} {
		if v < 0 {
			return fmt.Errorf("engine.weights must be non-negative")
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
