package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/env"
	"gopkg.in/yaml.v3"
)

// Config represents the riskproxy configuration
type Config struct {
	Target    TargetConfig    `yaml:"target"`
	Canonical CanonicalConfig `yaml:"canonical"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Payload   PayloadConfig   `yaml:"payload"`
	Storage   StorageConfig   `yaml:"storage"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	Poll      PollConfig      `yaml:"poll"`
	Alert     AlertConfig     `yaml:"alert"`
	Log       LogConfig       `yaml:"log"`
}

// TargetConfig identifies the monitored application
type TargetConfig struct {
	Host            string `yaml:"host"`
	MonitoredPrefix string `yaml:"monitored_prefix"`
	CanonicalURL    string `yaml:"canonical_url"`
}

// CanonicalConfig describes the default, unfiltered query shape
type CanonicalConfig struct {
	EmptyFields   []string `yaml:"empty_fields"`
	DefaultFields []string `yaml:"default_fields"`
	DefaultValue  string   `yaml:"default_value"`
	QueryField    string   `yaml:"query_field"`
	QueryText     string   `yaml:"query_text"`
}

// TokensConfig names the tracked credentials
type TokensConfig struct {
	Cookies        []string `yaml:"cookies"`
	TimestampField string   `yaml:"timestamp_field"`
	NonceField     string   `yaml:"nonce_field"`
	Restore        bool     `yaml:"restore"` // reload the credential file at startup
}

// PayloadConfig controls auto-capture rewriting
type PayloadConfig struct {
	Template       string `yaml:"template"`
	TemplateFile   string `yaml:"template_file"`
	Marker         string `yaml:"marker"`
	RefreshCookies *bool  `yaml:"refresh_cookies"`
}

// StorageConfig locates durable state. Relative file names resolve against Dir.
type StorageConfig struct {
	Dir             string `yaml:"dir"`
	CredentialsFile string `yaml:"credentials_file"`
	HistoryDB       string `yaml:"history_db"`
}

// ProxyConfig controls the listening proxy
type ProxyConfig struct {
	Listen  string `yaml:"listen"`
	Verbose bool   `yaml:"verbose"`
}

// DecoderConfig controls the HTML table decoder
type DecoderConfig struct {
	TableID          string `yaml:"table_id"`
	ColumnKey        string `yaml:"column_key"`
	ColumnLabel      string `yaml:"column_label"`
	ColumnListPrefix string `yaml:"column_list_prefix"`
}

// PollConfig controls the automated polling client
type PollConfig struct {
	ProxyURL      string            `yaml:"proxy_url"`
	Interval      time.Duration     `yaml:"interval"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
	InsecureTLS   *bool             `yaml:"insecure_tls"`
	FailurePhrase string            `yaml:"failure_phrase"`
}

// AlertConfig controls margin utilization alerts sent by watch
type AlertConfig struct {
	Threshold    float64 `yaml:"threshold"`
	On           string  `yaml:"on"` // always, breach or change
	SlackWebhook string  `yaml:"slack_webhook"`
	SlackChannel string  `yaml:"slack_channel"`
	TeamsWebhook string  `yaml:"teams_webhook"`
}

// Enabled reports whether any webhook is configured.
func (a AlertConfig) Enabled() bool {
	return a.SlackWebhook != "" || a.TeamsWebhook != ""
}

// LogConfig controls logging output
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// BoolPtr returns a pointer to a bool value
func BoolPtr(b bool) *bool {
	return &b
}

// GetRefreshCookies returns the refresh cookies setting, defaulting to true
func (p PayloadConfig) GetRefreshCookies() bool {
	return getBool(p.RefreshCookies, true)
}

// GetInsecureTLS returns the insecure TLS setting, defaulting to true because
// the poller talks to the proxy's own MITM certificate.
func (p PollConfig) GetInsecureTLS() bool {
	return getBool(p.InsecureTLS, true)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"riskproxy.yaml",
	".riskproxy.yaml",
	"riskproxy.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file. ${VAR}
// references are expanded from the environment, after a .env file beside
// the config has been exported, before decoding.
func loadConfigFromFile(path string) (*Config, error) {
	if err := env.ExportBeside(filepath.Dir(path)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Payload.TemplateFile != "" && !filepath.IsAbs(cfg.Payload.TemplateFile) {
		cfg.Payload.TemplateFile = filepath.Join(filepath.Dir(path), cfg.Payload.TemplateFile)
	}

	return cfg, nil
}

// Validate reports configuration errors that must stop startup.
func (c *Config) Validate() error {
	if c.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if c.Target.MonitoredPrefix == "" {
		return fmt.Errorf("target.monitored_prefix is required")
	}
	if !strings.HasPrefix(c.Target.CanonicalURL, c.Target.MonitoredPrefix) {
		return fmt.Errorf("target.canonical_url %q is outside monitored prefix %q",
			c.Target.CanonicalURL, c.Target.MonitoredPrefix)
	}
	if c.Payload.Marker == "" {
		return fmt.Errorf("payload.marker must not be empty")
	}
	if c.Tokens.TimestampField == "" || c.Tokens.NonceField == "" {
		return fmt.Errorf("tokens.timestamp_field and tokens.nonce_field are required")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	switch c.Alert.On {
	case "always", "breach", "change":
	default:
		return fmt.Errorf("alert.on must be always, breach or change, got %q", c.Alert.On)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// LoadTemplate returns the payload template text, reading TemplateFile when
// no inline template is configured. An empty result disables rewriting.
func (c *Config) LoadTemplate() (string, error) {
	text := c.Payload.Template
	if text == "" && c.Payload.TemplateFile != "" {
		data, err := os.ReadFile(c.Payload.TemplateFile)
		if err != nil {
			return "", fmt.Errorf("reading payload template: %w", err)
		}
		text = strings.TrimRight(string(data), "\r\n")
	}
	if text != "" && !strings.Contains(text, "{{timestamp}}") {
		return "", fmt.Errorf("payload template has no {{timestamp}} placeholder")
	}
	return text, nil
}

// CredentialsPath returns the credential file path.
func (c *Config) CredentialsPath() string {
	return c.storagePath(c.Storage.CredentialsFile)
}

// HistoryPath returns the history database path.
func (c *Config) HistoryPath() string {
	return c.storagePath(c.Storage.HistoryDB)
}

func (c *Config) storagePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Storage.Dir, name)
}

// EnsureStorage creates the storage directory and checks that it is writable.
func (c *Config) EnsureStorage() error {
	if err := os.MkdirAll(c.Storage.Dir, 0755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}
	probe, err := os.CreateTemp(c.Storage.Dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("storage dir %s is not writable: %w", c.Storage.Dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}
