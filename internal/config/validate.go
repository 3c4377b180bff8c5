package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks the values every command depends on.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	b := c.Budget
	if !b.QuarterlyBudget.IsPositive() {
		add("budget.quarterly_budget must be positive, got %s", b.QuarterlyBudget)
	}
	if b.SafetyBuffer.IsNegative() || b.SafetyBuffer.GreaterThanOrEqual(b.QuarterlyBudget) {
		add("budget.safety_buffer must be in [0, quarterly_budget), got %s", b.SafetyBuffer)
	}
	if !b.PerPageRate.IsPositive() {
		add("budget.per_page_rate must be positive, got %s", b.PerPageRate)
	}
	if b.PerDocumentCap.LessThan(b.PerPageRate) {
		add("budget.per_document_cap must be at least per_page_rate, got %s", b.PerDocumentCap)
	}
	if b.EstimatedPages < 0 {
		add("budget.estimated_pages must not be negative, got %d", b.EstimatedPages)
	}

	p := c.Polling
	for name, d := range map[string]time.Duration{
		"polling.high_interval":   p.HighInterval,
		"polling.medium_interval": p.MediumInterval,
		"polling.low_interval":    p.LowInterval,
		"polling.cycle_interval":  p.CycleInterval,
		"polling.request_timeout": p.RequestTimeout,
	} {
		if d <= 0 {
			add("%s must be positive, got %s", name, d)
		}
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		add("polling.jitter must be in [0, 1), got %g", p.Jitter)
	}
	if p.Concurrency < 1 {
		add("polling.concurrency must be at least 1, got %d", p.Concurrency)
	}
	oh := p.OperatingHours
	if oh.Start < 0 || oh.Start > 23 || oh.End < 0 || oh.End > 23 {
		add("polling.operating_hours start/end must be 0-23, got %d-%d", oh.Start, oh.End)
	}
	if _, err := time.LoadLocation(oh.Timezone); err != nil {
		add("polling.operating_hours.timezone %q: %v", oh.Timezone, err)
	}

	if c.Storage.DataDir == "" || c.Storage.DBFile == "" {
		add("storage.data_dir and storage.db_file are required")
	}
	if c.CourtListener.CacheSize < 1 {
		add("courtlistener.cache_size must be at least 1, got %d", c.CourtListener.CacheSize)
	}
	if c.CourtListener.CacheTTL <= 0 {
		add("courtlistener.cache_ttl must be positive, got %s", c.CourtListener.CacheTTL)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		add("logging.format must be console or json, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ValidatePaidSource checks the settings needed by commands that poll the
// paid source.
func (c *Config) ValidatePaidSource() error {
	var missing []string
	if c.Pacer.ScraperURL == "" {
		missing = append(missing, "pacer.scraper_url")
	}
	if c.Pacer.Username == "" {
		missing = append(missing, "pacer.username")
	}
	if c.Pacer.Password == "" {
		missing = append(missing, "pacer.password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrInvalidConfig, missing)
	}
	return nil
}
