package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	envPrefix         = "SQLNOW_"
	defaultConfigFile = "sqlnow.toml"

	// noDefaultTag names a tag nothing carries so the override pass leaves
	// values from the file untouched.
	noDefaultTag = "envNoDefault"
)

// Config represents the application configuration
type Config struct {
	EngineConfig

	Views  []Source `toml:"views"  json:"views,omitempty"`
	Tables []Source `toml:"tables" json:"tables,omitempty"`

	Server  ServerConfig  `toml:"server"  json:"server"`
	Query   QueryConfig   `toml:"query"   json:"query"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// EngineConfig controls the DuckDB instance and how sources are loaded into it
type EngineConfig struct {
	Database string `toml:"database" json:"database" env:"DATABASE"` // empty keeps everything in memory
	Drop     bool   `toml:"drop"     json:"drop"     env:"DROP"     envDefault:"false"`
	AllText  bool   `toml:"all_text" json:"all_text" env:"ALL_TEXT" envDefault:"false"`
}

// ServerConfig represents HTTP API configuration
type ServerConfig struct {
	Addr        string   `toml:"addr"         json:"addr"         env:"ADDR"         envDefault:"127.0.0.1:3030"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// QueryConfig represents limits applied to interactive queries and exports
type QueryConfig struct {
	PreviewLimit  int    `toml:"preview_limit"  json:"preview_limit"  env:"PREVIEW_LIMIT"  envDefault:"500"`
	DisplayLimit  int    `toml:"display_limit"  json:"display_limit"  env:"DISPLAY_LIMIT"  envDefault:"1000"`
	ExportLimit   int    `toml:"export_limit"   json:"export_limit"   env:"EXPORT_LIMIT"   envDefault:"0"` // 0 exports everything
	QueryTimeout  string `toml:"query_timeout"  json:"query_timeout"  env:"QUERY_TIMEOUT"  envDefault:"30s"`
	ExportTimeout string `toml:"export_timeout" json:"export_timeout" env:"EXPORT_TIMEOUT" envDefault:"10m"`
	StagingDir    string `toml:"staging_dir"    json:"staging_dir"    env:"STAGING_DIR"` // defaults to the OS temp dir
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"  json:"level"  env:"LOG_LEVEL"  envDefault:"info"`                             // debug, info, warn, error
	Format string `toml:"format" json:"format" env:"LOG_FORMAT" envDefault:"text"`                             // text, json
	Output string `toml:"output" json:"output" env:"LOG_OUTPUT" envDefault:"stderr"`                           // stdout, stderr, file
	File   string `toml:"file"   json:"file"   env:"LOG_FILE"   envDefault:"~/.local/state/sqlnow/sqlnow.log"` // log file path when output is file
}

// DefaultConfig returns a configuration populated only from envDefault tags
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = applyEnv(cfg, env.Options{Environment: map[string]string{}})

	return cfg
}

// LoadConfig loads configuration from the default locations and the environment
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides("", nil)
}

// LoadConfigWithOverrides loads configuration from file, environment variables,
// and command-line flag overrides, in that order of precedence.
func LoadConfigWithOverrides(configPath string, flagOverrides map[string]interface{}) (*Config, error) {
	// .env is optional; a missing file is not an error
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	config := DefaultConfig()

	if path := getConfigPath(configPath); path != "" {
		if err := loadConfigFromFile(config, path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnv(config, env.Options{
		Prefix:              envPrefix,
		DefaultValueTagName: noDefaultTag,
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	config.normalize()

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnv parses each env-bearing section; source lists are file-only.
func applyEnv(config *Config, opts env.Options) error {
	sections := []interface{}{
		&config.EngineConfig,
		&config.Server,
		&config.Query,
		&config.Logging,
	}
	for _, section := range sections {
		if err := env.ParseWithOptions(section, opts); err != nil {
			return err
		}
	}

	return nil
}

// loadConfigFromFile decodes a TOML file over the current configuration
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), config)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}

		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "database":
			if str, ok := value.(string); ok && str != "" {
				config.Database = str
			}
		case "drop":
			if b, ok := value.(bool); ok && b {
				config.Drop = true
			}
		case "all-text":
			if b, ok := value.(bool); ok && b {
				config.AllText = true
			}
		case "addr":
			if str, ok := value.(string); ok && str != "" {
				config.Server.Addr = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "log-format":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Format = str
			}
		case "sources":
			args, ok := value.([]string)
			if !ok {
				return fmt.Errorf("sources override must be a list of strings, got %T", value)
			}

			views, tables := SourcesFromArgs(args)
			config.Views = append(config.Views, views...)
			config.Tables = append(config.Tables, tables...)
		default:
			return fmt.Errorf("unknown override: %s", key)
		}
	}

	return nil
}

// normalize fills derived values after all layers are applied
func (c *Config) normalize() {
	c.Database = expandPath(c.Database)
	c.Logging.File = expandPath(c.Logging.File)
	c.Query.StagingDir = expandPath(c.Query.StagingDir)

	for i := range c.Views {
		c.Views[i] = c.Views[i].withDefaults()
	}

	for i := range c.Tables {
		c.Tables[i] = c.Tables[i].withDefaults()
	}
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	if _, err := time.ParseDuration(config.Query.QueryTimeout); err != nil {
		return fmt.Errorf("invalid query timeout: %s", config.Query.QueryTimeout)
	}

	if _, err := time.ParseDuration(config.Query.ExportTimeout); err != nil {
		return fmt.Errorf("invalid export timeout: %s", config.Query.ExportTimeout)
	}

	if config.Query.PreviewLimit <= 0 || config.Query.DisplayLimit <= 0 {
		return fmt.Errorf(
			"preview and display limits must be positive: %d, %d",
			config.Query.PreviewLimit,
			config.Query.DisplayLimit,
		)
	}

	if config.Query.ExportLimit < 0 {
		return fmt.Errorf("export limit must not be negative: %d", config.Query.ExportLimit)
	}

	for _, source := range config.Views {
		if err := validateView(source); err != nil {
			return err
		}
	}

	for _, source := range config.Tables {
		if err := validateTable(source); err != nil {
			return err
		}
	}

	return nil
}

func validateView(source Source) error {
	if source.URI == "" {
		return fmt.Errorf("view %q has no uri", source.Name)
	}

	if source.IsDatabase() {
		return nil
	}

	switch source.Format() {
	case FormatCSV, FormatParquet:
		return nil
	case FormatXLSX, FormatJSON:
		return fmt.Errorf("%s: %s files can only be loaded as tables", source.URI, source.Format())
	default:
		return fmt.Errorf("%s: unsupported file type", source.URI)
	}
}

func validateTable(source Source) error {
	if source.URI == "" {
		return fmt.Errorf("table %q has no uri", source.Name)
	}

	if source.IsDatabase() {
		return fmt.Errorf("%s: external databases can only be attached as views", source.URI)
	}

	if source.Format() == FormatUnknown {
		return fmt.Errorf("%s: unsupported file type", source.URI)
	}

	return nil
}

// QueryTimeoutDuration returns the parsed interactive query deadline
func (c *Config) QueryTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Query.QueryTimeout)
	return d
}

// ExportTimeoutDuration returns the parsed export deadline
func (c *Config) ExportTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Query.ExportTimeout)
	return d
}

// Sources returns views followed by tables, the order they are ingested in
func (c *Config) Sources() []Source {
	sources := make([]Source, 0, len(c.Views)+len(c.Tables))
	sources = append(sources, c.Views...)

	return append(sources, c.Tables...)
}

// Encode renders the configuration as TOML
func (c *Config) Encode() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.String(), nil
}

// getConfigPath returns the configuration file to read, or "" when none applies
func getConfigPath(explicit string) string {
	if explicit != "" {
		return expandPath(explicit)
	}

	if configPath := os.Getenv(envPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}

	return ""
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}
