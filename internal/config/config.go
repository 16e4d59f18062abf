package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Sender      SenderConfig      `yaml:"sender"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Contacts    ContactsConfig    `yaml:"contacts"`
	Templates   TemplatesConfig   `yaml:"templates"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Lock        LockConfig        `yaml:"lock"`
	Pacing      PacingConfig      `yaml:"pacing"`
	Preview     PreviewConfig     `yaml:"preview"`
	Report      ReportConfig      `yaml:"report"`
	DKIM        DKIMConfig        `yaml:"dkim"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Timezone    string            `yaml:"timezone"`
	// Variables are merged under per-row CSV columns at render time;
	// a CSV column with the same name wins.
	Variables map[string]string `yaml:"variables"`
}

// SenderConfig identifies the sending party
type SenderConfig struct {
	Email   string `yaml:"email"`
	Name    string `yaml:"name"`
	ReplyTo string `yaml:"reply_to"`
}

// SMTPConfig contains mail relay settings
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"` // supports ${ENV_VAR} expansion
	StartTLS bool          `yaml:"starttls"` // false = implicit TLS (port 465 style)
	Timeout  time.Duration `yaml:"timeout"`
}

// ContactsConfig locates the recipient list
type ContactsConfig struct {
	Path string `yaml:"path"`
}

// TemplatesConfig locates the per-language template sets
type TemplatesConfig struct {
	Root        string `yaml:"root"`
	DefaultLang string `yaml:"default_lang"`
}

// AttachmentsConfig controls attachment resolution
type AttachmentsConfig struct {
	Root string `yaml:"root"`
	// LangDirFallback attaches every file under <root>/<lang>/ when a
	// row specifies no attachments of its own.
	LangDirFallback bool `yaml:"lang_dir_fallback"`
}

// LedgerConfig locates the send ledger
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LockConfig locates the run lock file, shared by manual and scheduled runs
type LockConfig struct {
	Path string `yaml:"path"`
}

// PacingConfig throttles delivery against the relay
type PacingConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// PreviewConfig locates dry-run output
type PreviewConfig struct {
	Dir string `yaml:"dir"`
}

// ReportConfig locates the HTML dashboard
type ReportConfig struct {
	Path string `yaml:"path"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// MetricsConfig contains Prometheus metrics settings, used in
// recurring-schedule mode only
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.SMTP.Host == "" {
		c.SMTP.Host = "smtp.gmail.com"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 465
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 30 * time.Second
	}
	if c.SMTP.Username == "" {
		c.SMTP.Username = c.Sender.Email
	}
	// Credentials stay out of the config file
	c.SMTP.Password = os.ExpandEnv(c.SMTP.Password)

	if c.Sender.Name == "" {
		c.Sender.Name = "Bot"
	}
	if c.Sender.ReplyTo == "" {
		c.Sender.ReplyTo = c.Sender.Email
	}

	if c.Contacts.Path == "" {
		c.Contacts.Path = "contacts.csv"
	}
	if c.Templates.Root == "" {
		c.Templates.Root = "templates"
	}
	if c.Templates.DefaultLang == "" {
		c.Templates.DefaultLang = "en"
	}
	if c.Attachments.Root == "" {
		c.Attachments.Root = "attachments"
	}

	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join("logs", "sent.csv")
	}
	if c.Lock.Path == "" {
		c.Lock.Path = filepath.Join("logs", "mailfold.lock")
	}
	if c.Preview.Dir == "" {
		c.Preview.Dir = filepath.Join("logs", "dry-run")
	}
	if c.Report.Path == "" {
		c.Report.Path = filepath.Join("logs", "dashboard.html")
	}

	if c.Pacing.Delay == 0 {
		c.Pacing.Delay = 8 * time.Second
	}

	if c.Timezone == "" {
		c.Timezone = "Local"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate validates the configuration. Credential checks live in
// ValidateForSend so that dry runs and reports work without them.
func (c *Config) Validate() error {
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp.port: %d", c.SMTP.Port)
	}
	if c.Pacing.Delay < 0 {
		return fmt.Errorf("pacing.delay must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.validateDKIM(); err != nil {
		return err
	}

	return nil
}

// ValidateForSend validates the settings a real delivery run needs
func (c *Config) ValidateForSend() error {
	if c.Sender.Email == "" {
		return fmt.Errorf("sender.email is required")
	}
	if c.SMTP.Password == "" {
		return fmt.Errorf("smtp.password is required (reference an environment variable, e.g. ${APP_PASSWORD})")
	}
	return nil
}

// validateDKIM validates DKIM configuration
func (c *Config) validateDKIM() error {
	if !c.DKIM.Enabled {
		return nil
	}

	if c.DKIM.Selector == "" {
		return fmt.Errorf("dkim.selector is required when DKIM is enabled")
	}
	if c.DKIM.KeyFile == "" {
		return fmt.Errorf("dkim.key_file is required when DKIM is enabled")
	}
	if c.DKIM.Domain == "" {
		return fmt.Errorf("dkim.domain is required when DKIM is enabled")
	}

	return nil
}
