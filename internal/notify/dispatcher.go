package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/renderinc/docket-monitor/internal/config"
	"github.com/renderinc/docket-monitor/internal/model"
)

// Result is the outcome of one channel's delivery
type Result struct {
	Channel string
	Err     error
}

// OK reports whether the channel accepted the notification
func (r Result) OK() bool { return r.Err == nil }

// Dispatcher fans a case update out to every configured channel. Failures
// are logged and reported, never retried.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over a fixed set of channels
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// FromConfig registers a channel for every configured destination
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	var notifiers []Notifier
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, NewSlack(cfg.SlackWebhook))
	}
	if cfg.DiscordWebhook != "" {
		notifiers = append(notifiers, NewDiscord(cfg.DiscordWebhook))
	}
	if cfg.TeamsWebhook != "" {
		notifiers = append(notifiers, NewTeams(cfg.TeamsWebhook))
	}
	if cfg.GenericWebhook != "" {
		notifiers = append(notifiers, NewWebhook(cfg.GenericWebhook, cfg.WebhookSecret))
	}
	if cfg.Email.Enabled() {
		notifiers = append(notifiers, NewEmail(EmailSettings{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}
	return NewDispatcher(logger, notifiers...)
}

// Channels lists the registered channel names
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Dispatch sends to every channel and returns one result per channel
func (d *Dispatcher) Dispatch(ctx context.Context, c model.Summary, entries []model.DocketEntry) []Result {
	results := make([]Result, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		err := n.Send(ctx, c, entries)
		if err != nil {
			d.logger.Error("notification failed", "channel", n.Name(), "case_id", c.ID, "error", err)
		} else {
			d.logger.Info("notification sent", "channel", n.Name(), "case_id", c.ID, "entries", len(entries))
		}
		results = append(results, Result{Channel: n.Name(), Err: err})
	}
	return results
}

// Deliver dispatches and joins the failures into one error
func (d *Dispatcher) Deliver(ctx context.Context, c model.Summary, entries []model.DocketEntry) error {
	var errs []error
	for _, r := range d.Dispatch(ctx, c, entries) {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Channel, r.Err))
		}
	}
	return errors.Join(errs...)
}
