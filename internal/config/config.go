// Package config holds the typed configuration for docket-monitor.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file,
// DOCKET_* environment variables, and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/renderinc/docket-monitor/internal/budget"
	"github.com/renderinc/docket-monitor/internal/model"
)

// EnvPrefix is the prefix for environment overrides, e.g. DOCKET_PACER_USERNAME
const EnvPrefix = "DOCKET"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all docket-monitor configuration.
type Config struct {
	Budget        BudgetConfig        `mapstructure:"budget" yaml:"budget"`
	Polling       PollingConfig       `mapstructure:"polling" yaml:"polling"`
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	CourtListener CourtListenerConfig `mapstructure:"courtlistener" yaml:"courtlistener"`
	Pacer         PacerConfig         `mapstructure:"pacer" yaml:"pacer"`
	Notify        NotifyConfig        `mapstructure:"notify" yaml:"notify"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
}

type BudgetConfig struct {
	QuarterlyBudget decimal.Decimal `mapstructure:"quarterly_budget" yaml:"quarterly_budget"`
	SafetyBuffer    decimal.Decimal `mapstructure:"safety_buffer" yaml:"safety_buffer"`
	PerPageRate     decimal.Decimal `mapstructure:"per_page_rate" yaml:"per_page_rate"`
	PerDocumentCap  decimal.Decimal `mapstructure:"per_document_cap" yaml:"per_document_cap"`
	// EstimatedPages is the unit count priced before each paid check
	EstimatedPages int `mapstructure:"estimated_pages" yaml:"estimated_pages"`
}

type PollingConfig struct {
	HighInterval   time.Duration  `mapstructure:"high_interval" yaml:"high_interval"`
	MediumInterval time.Duration  `mapstructure:"medium_interval" yaml:"medium_interval"`
	LowInterval    time.Duration  `mapstructure:"low_interval" yaml:"low_interval"`
	Jitter         float64        `mapstructure:"jitter" yaml:"jitter"`
	CycleInterval  time.Duration  `mapstructure:"cycle_interval" yaml:"cycle_interval"`
	Concurrency    int            `mapstructure:"concurrency" yaml:"concurrency"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout" yaml:"request_timeout"`
	OperatingHours OperatingHours `mapstructure:"operating_hours" yaml:"operating_hours"`
}

// OperatingHours is the recommended polling window. Start > End wraps
// past midnight.
type OperatingHours struct {
	Start    int    `mapstructure:"start" yaml:"start"`
	End      int    `mapstructure:"end" yaml:"end"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

type StorageConfig struct {
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir"`
	DBFile   string `mapstructure:"db_file" yaml:"db_file"`
	IndexDir string `mapstructure:"index_dir" yaml:"index_dir"`
}

type CourtListenerConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Token     string        `mapstructure:"token" yaml:"token"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
}

type PacerConfig struct {
	ScraperURL string `mapstructure:"scraper_url" yaml:"scraper_url"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
}

type NotifyConfig struct {
	SlackWebhook   string      `mapstructure:"slack_webhook" yaml:"slack_webhook"`
	DiscordWebhook string      `mapstructure:"discord_webhook" yaml:"discord_webhook"`
	TeamsWebhook   string      `mapstructure:"teams_webhook" yaml:"teams_webhook"`
	GenericWebhook string      `mapstructure:"generic_webhook" yaml:"generic_webhook"`
	WebhookSecret  string      `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	Email          EmailConfig `mapstructure:"email" yaml:"email"`
}

type EmailConfig struct {
	SMTPHost string   `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	From     string   `mapstructure:"from" yaml:"from"`
	To       []string `mapstructure:"to" yaml:"to"`
}

// Enabled reports whether enough is configured to send mail
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && e.From != "" && len(e.To) > 0
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr is the listen address for the control surface
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DBPath is the SQLite file location
func (s StorageConfig) DBPath() string {
	return filepath.Join(s.DataDir, s.DBFile)
}

// IndexPath is the Bleve index location
func (s StorageConfig) IndexPath() string {
	return filepath.Join(s.DataDir, s.IndexDir)
}

// Rates converts the budget section into ledger parameters
func (b BudgetConfig) Rates() budget.Rates {
	return budget.Rates{
		QuarterlyBudget: b.QuarterlyBudget,
		SafetyBuffer:    b.SafetyBuffer,
		PerPageRate:     b.PerPageRate,
		PerDocumentCap:  b.PerDocumentCap,
	}
}

// Intervals maps each priority tier to its base polling interval
func (p PollingConfig) Intervals() map[model.Priority]time.Duration {
	return map[model.Priority]time.Duration{
		model.PriorityHigh:   p.HighInterval,
		model.PriorityMedium: p.MediumInterval,
		model.PriorityLow:    p.LowInterval,
	}
}

// Location resolves the operating-hours timezone, falling back to UTC
func (o OperatingHours) Location() *time.Location {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Contains reports whether t falls inside the window
func (o OperatingHours) Contains(t time.Time) bool {
	h := t.In(o.Location()).Hour()
	if o.Start == o.End {
		return true
	}
	if o.Start < o.End {
		return h >= o.Start && h < o.End
	}
	return h >= o.Start || h < o.End
}

// Load unmarshals v on top of the defaults and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Storage.DataDir = ExpandPath(cfg.Storage.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file plus environment overrides. A missing path
// yields the defaults.
func LoadFile(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return Load(v)
}

// NewViper returns a viper instance wired for DOCKET_* environment overrides
func NewViper() *viper.Viper {
	v := viper.New()
	ConfigureEnv(v)
	return v
}

// ConfigureEnv enables DOCKET_* overrides on v
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// SetDefaults registers every key with its default, which also makes each
// key visible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("budget.quarterly_budget", d.Budget.QuarterlyBudget.String())
	v.SetDefault("budget.safety_buffer", d.Budget.SafetyBuffer.String())
	v.SetDefault("budget.per_page_rate", d.Budget.PerPageRate.String())
	v.SetDefault("budget.per_document_cap", d.Budget.PerDocumentCap.String())
	v.SetDefault("budget.estimated_pages", d.Budget.EstimatedPages)

	v.SetDefault("polling.high_interval", d.Polling.HighInterval.String())
	v.SetDefault("polling.medium_interval", d.Polling.MediumInterval.String())
	v.SetDefault("polling.low_interval", d.Polling.LowInterval.String())
	v.SetDefault("polling.jitter", d.Polling.Jitter)
	v.SetDefault("polling.cycle_interval", d.Polling.CycleInterval.String())
	v.SetDefault("polling.concurrency", d.Polling.Concurrency)
	v.SetDefault("polling.request_timeout", d.Polling.RequestTimeout.String())
	v.SetDefault("polling.operating_hours.start", d.Polling.OperatingHours.Start)
	v.SetDefault("polling.operating_hours.end", d.Polling.OperatingHours.End)
	v.SetDefault("polling.operating_hours.timezone", d.Polling.OperatingHours.Timezone)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.db_file", d.Storage.DBFile)
	v.SetDefault("storage.index_dir", d.Storage.IndexDir)

	v.SetDefault("courtlistener.base_url", d.CourtListener.BaseURL)
	v.SetDefault("courtlistener.token", "")
	v.SetDefault("courtlistener.cache_ttl", d.CourtListener.CacheTTL.String())
	v.SetDefault("courtlistener.cache_size", d.CourtListener.CacheSize)

	v.SetDefault("pacer.scraper_url", "")
	v.SetDefault("pacer.username", "")
	v.SetDefault("pacer.password", "")

	v.SetDefault("notify.slack_webhook", "")
	v.SetDefault("notify.discord_webhook", "")
	v.SetDefault("notify.teams_webhook", "")
	v.SetDefault("notify.generic_webhook", "")
	v.SetDefault("notify.webhook_secret", "")
	v.SetDefault("notify.email.smtp_host", "")
	v.SetDefault("notify.email.smtp_port", d.Notify.Email.SMTPPort)
	v.SetDefault("notify.email.username", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.to", []string{})

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
}

// Write saves cfg as YAML, creating parent directories
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// May contain credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ExpandPath expands a leading ~ and $VAR references
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		decimalHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook accepts "30", "$30.00", 30 and 30.5 for money fields
func decimalHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			s := strings.TrimPrefix(strings.TrimSpace(v), "$")
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("parsing amount %q: %w", v, err)
			}
			return d, nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		}
		return data, nil
	}
}
