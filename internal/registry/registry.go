// Package registry is the set of monitored cases and the rules for when each
// one is next due.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/renderinc/docket-monitor/internal/model"
)

// ErrMissingIdentity is returned when a case lacks a court or docket number
var ErrMissingIdentity = errors.New("court and case number are required")

// Store is the durable side of the registry
type Store interface {
	UpsertCase(ctx context.Context, c *model.Case) (bool, error)
	GetCase(ctx context.Context, id string) (*model.Case, error)
	ListCases(ctx context.Context) ([]*model.Case, error)
	MarkChecked(ctx context.Context, id string, when time.Time) error
	ClearLastChecked(ctx context.Context, id string) error
	SetNotifications(ctx context.Context, id string, enabled bool) error
}

// Registry owns case registration and due-ness
type Registry struct {
	store     Store
	intervals map[model.Priority]time.Duration
	jitter    float64
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand // nil uses the global source
}

// Option configures a Registry
type Option func(*Registry)

// WithRand makes jitter reproducible
func WithRand(r *rand.Rand) Option {
	return func(reg *Registry) { reg.rng = r }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(reg *Registry) { reg.logger = logger }
}

// New creates a registry. jitter is the maximum relative perturbation of a
// tier interval, 0.10 for ±10%.
func New(store Store, intervals map[model.Priority]time.Duration, jitter float64, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		intervals: intervals,
		jitter:    jitter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert registers a case or, if it exists, changes its priority.
// Returns true when the case was created.
func (r *Registry) Upsert(ctx context.Context, c *model.Case) (bool, error) {
	p, err := model.ParsePriority(string(c.Priority))
	if err != nil {
		return false, err
	}
	c.Priority = p
	c.CourtID = strings.ToLower(strings.TrimSpace(c.CourtID))
	c.CaseNumber = strings.TrimSpace(c.CaseNumber)
	if c.CourtID == "" || c.CaseNumber == "" {
		return false, ErrMissingIdentity
	}
	c.ID = model.CaseID(c.CourtID, c.CaseNumber)

	created, err := r.store.UpsertCase(ctx, c)
	if err != nil {
		return false, fmt.Errorf("upsert case %s: %w", c.ID, err)
	}

	if created {
		r.logger.Info("case registered", "case_id", c.ID, "priority", c.Priority)
	} else {
		r.logger.Info("case priority updated", "case_id", c.ID, "priority", c.Priority)
	}
	return created, nil
}

// Get returns one case
func (r *Registry) Get(ctx context.Context, id string) (*model.Case, error) {
	return r.store.GetCase(ctx, id)
}

// List returns every case, highest priority first
func (r *Registry) List(ctx context.Context) ([]*model.Case, error) {
	return r.store.ListCases(ctx)
}

// ListDue returns the cases due for a check at now, in priority order.
// Jitter is drawn afresh for every case on every call.
func (r *Registry) ListDue(ctx context.Context, now time.Time) ([]*model.Case, error) {
	cases, err := r.store.ListCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}

	due := []*model.Case{}
	for _, c := range cases {
		if r.IsDue(c, now) {
			due = append(due, c)
		}
	}
	return due, nil
}

// IsDue reports whether c needs a check at now
func (r *Registry) IsDue(c *model.Case, now time.Time) bool {
	if c.LastChecked == nil {
		return true
	}
	return now.Sub(*c.LastChecked) > r.EffectiveInterval(c.Priority)
}

// EffectiveInterval is the tier interval scaled by a random factor in
// [1-jitter, 1+jitter]
func (r *Registry) EffectiveInterval(p model.Priority) time.Duration {
	base, ok := r.intervals[p]
	if !ok {
		base = r.intervals[model.PriorityLow]
	}
	if r.jitter <= 0 {
		return base
	}
	factor := 1 + r.jitter*(2*r.float64()-1)
	return time.Duration(float64(base) * factor)
}

func (r *Registry) float64() float64 {
	if r.rng == nil {
		return rand.Float64()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// MarkChecked records a completed check; idempotent
func (r *Registry) MarkChecked(ctx context.Context, id string, when time.Time) error {
	if err := r.store.MarkChecked(ctx, id, when); err != nil {
		return fmt.Errorf("mark %s checked: %w", id, err)
	}
	return nil
}

// ForceCheck clears last_checked so the next cycle treats the case as due
func (r *Registry) ForceCheck(ctx context.Context, id string) error {
	if err := r.store.ClearLastChecked(ctx, id); err != nil {
		return fmt.Errorf("force check %s: %w", id, err)
	}
	r.logger.Info("case queued for re-check", "case_id", id)
	return nil
}

// SetNotifications enables or disables notifications for a case
func (r *Registry) SetNotifications(ctx context.Context, id string, enabled bool) error {
	if err := r.store.SetNotifications(ctx, id, enabled); err != nil {
		return fmt.Errorf("set notifications for %s: %w", id, err)
	}
	return nil
}
