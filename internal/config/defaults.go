package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultConfigPath is where init writes and run looks first
const DefaultConfigPath = "~/.config/docket-monitor/config.yaml"

// Default returns a Config populated with all default values.
func Default() *Config {
	return &Config{
		Budget: BudgetConfig{
			QuarterlyBudget: decimal.NewFromInt(30),
			SafetyBuffer:    decimal.NewFromInt(5),
			PerPageRate:     decimal.RequireFromString("0.10"),
			PerDocumentCap:  decimal.NewFromInt(3),
			EstimatedPages:  3,
		},
		Polling: PollingConfig{
			HighInterval:   time.Hour,
			MediumInterval: 6 * time.Hour,
			LowInterval:    24 * time.Hour,
			Jitter:         0.10,
			CycleInterval:  5 * time.Minute,
			Concurrency:    3,
			RequestTimeout: 60 * time.Second,
			OperatingHours: OperatingHours{
				Start:    18,
				End:      6,
				Timezone: "America/Chicago",
			},
		},
		Storage: StorageConfig{
			DataDir:  "~/.local/share/docket-monitor",
			DBFile:   "docket-monitor.db",
			IndexDir: "entries.bleve",
		},
		CourtListener: CourtListenerConfig{
			BaseURL:   "https://www.courtlistener.com/api/rest/v4",
			CacheTTL:  time.Hour,
			CacheSize: 1024,
		},
		Notify: NotifyConfig{
			Email: EmailConfig{
				SMTPPort: 587,
				To:       []string{},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}
