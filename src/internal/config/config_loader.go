package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VectorBits/pocshift/src/internal"
	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ChainConfig struct {
	Name       string   `yaml:"name"`
	ChainID    int      `yaml:"chain_id"`
	RPCURLs    []string `yaml:"rpc_urls"`
	Explorer   Explorer `yaml:"explorer"`
	Router     string   `yaml:"router"`
	Factory    string   `yaml:"factory"`
	MainTokens []string `yaml:"main_tokens"`
}

type Explorer struct {
	APIKey            string   `yaml:"api_key"`
	APIKeys           []string `yaml:"api_keys"`
	BaseURL           string   `yaml:"base_url"`
	RequestsPerSecond int      `yaml:"requests_per_second"`
}

type DatabaseConfig struct {
	// Driver is sqlite, postgres or mysql.
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type HarnessConfig struct {
	ForgePath      string `yaml:"forge_path"`
	ProjectDir     string `yaml:"project_dir"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// TraceDir holds recorded forge outputs replayed instead of running forge.
	TraceDir string `yaml:"trace_dir"`
}

type MatchingConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// LeaseSeconds 超过该时长的 matching_running 标记视为失效
	LeaseSeconds int `yaml:"lease_seconds"`
}

type PipelineConfig struct {
	Workers   int    `yaml:"workers"`
	OutputDir string `yaml:"output_dir"`
	ReportDir string `yaml:"report_dir"`
}

type AppConfig struct {
	Chains   map[string]ChainConfig `yaml:"chains"`
	Database DatabaseConfig         `yaml:"database"`
	Harness  HarnessConfig          `yaml:"harness"`
	Matching MatchingConfig         `yaml:"matching"`
	Pipeline PipelineConfig         `yaml:"pipeline"`
	LogDir   string                 `yaml:"log_dir"`
	Proxy    string                 `yaml:"proxy"`
}

var GlobalConfig *AppConfig
var loadOnce sync.Once
var loadedConfig *AppConfig
var loadedErr error

// LoadConfig 加载 settings.yaml，只加载一次
func LoadConfig() (*AppConfig, error) {
	loadOnce.Do(func() {
		configPath := findConfigFile()
		if configPath == "" {
			loadedErr = fmt.Errorf("the configuration file settings.yaml was not found")
			return
		}
		loadedConfig, loadedErr = Load(configPath)
		GlobalConfig = loadedConfig
	})

	if loadedErr != nil {
		return nil, loadedErr
	}
	return loadedConfig, nil
}

// Load parses one settings file, applies environment overrides and fills
// defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	LoadEnv(filepath.Join(filepath.Dir(path), ".env"))
	config.applyEnv()
	config.applyDefaults()
	if err := internal.ValidateProxyURL(config.Proxy); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadEnv reads .env files into the process environment. Missing files are
// ignored and existing variables win.
func LoadEnv(paths ...string) {
	for _, p := range append(paths, ".env") {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func (c *AppConfig) applyEnv() {
	c.Database.Driver = getEnv("POCSHIFT_DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("POCSHIFT_DB_PATH", c.Database.Path)
	c.Database.Host = getEnv("POCSHIFT_DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("POCSHIFT_DB_PORT", c.Database.Port)
	c.Database.User = getEnv("POCSHIFT_DB_USER", c.Database.User)
	c.Database.Password = getEnv("POCSHIFT_DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("POCSHIFT_DB_NAME", c.Database.Name)
	c.Harness.ForgePath = getEnv("FORGE_PATH", c.Harness.ForgePath)
	c.Harness.TimeoutSeconds = getEnvAsInt("POCSHIFT_FORGE_TIMEOUT", c.Harness.TimeoutSeconds)
	c.Proxy = getEnv("POCSHIFT_PROXY", c.Proxy)

	for name, chain := range c.Chains {
		// BSC_EXPLORER_API_KEY
		key := strings.ToUpper(name) + "_EXPLORER_API_KEY"
		if v := os.Getenv(key); v != "" {
			chain.Explorer.APIKeys = append(chain.Explorer.APIKeys, strings.Split(v, ",")...)
		}
		c.Chains[name] = chain
	}
}

func (c *AppConfig) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/pocshift.db"
	}
	if c.Harness.ProjectDir == "" {
		c.Harness.ProjectDir = "."
	}
	if c.Harness.TimeoutSeconds <= 0 {
		c.Harness.TimeoutSeconds = 3600
	}
	if c.Matching.PollIntervalSeconds <= 0 {
		c.Matching.PollIntervalSeconds = 5
	}
	if c.Matching.LeaseSeconds <= 0 {
		c.Matching.LeaseSeconds = 86400
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.OutputDir == "" {
		c.Pipeline.OutputDir = "output"
	}
	if c.Pipeline.ReportDir == "" {
		c.Pipeline.ReportDir = "reports"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Chains == nil {
		c.Chains = map[string]ChainConfig{}
	}
	for name, chain := range c.Chains {
		if chain.Name == "" {
			chain.Name = name
			c.Chains[name] = chain
		}
	}
}

func findConfigFile() string {
	possiblePaths := []string{
		"config/settings.yaml",
		"settings.yaml",
		"src/config/settings.yaml",
		"../config/settings.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func (c *AppConfig) GetChainConfig(chainName string) (*ChainConfig, error) {
	chain, exists := c.Chains[chainName]
	if !exists {
		return nil, fmt.Errorf("unsupported chain: %s", chainName)
	}
	return &chain, nil
}

// Tables returns the common-address table of every chain.
func (c *AppConfig) Tables() map[string]roles.Table {
	out := make(map[string]roles.Table, len(c.Chains))
	for name, chain := range c.Chains {
		out[name] = roles.Table{Router: chain.Router, Factory: chain.Factory, MainTokens: chain.MainTokens}
	}
	return out
}

func (c *AppConfig) ForgeTimeout() time.Duration {
	return time.Duration(c.Harness.TimeoutSeconds) * time.Second
}

func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Matching.PollIntervalSeconds) * time.Second
}

func (c *AppConfig) Lease() time.Duration {
	return time.Duration(c.Matching.LeaseSeconds) * time.Second
}

func GetConfigPath() string {
	return findConfigFile()
}

func GetConfigDir() string {
	configPath := findConfigFile()
	if configPath == "" {
		return "config"
	}
	return filepath.Dir(configPath)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
