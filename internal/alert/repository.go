package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wgroenewold/stream/internal/notifier"
)

// Store is the persistence backend for rules. UpsertRule inserts when
// rule.ID is 0 and updates otherwise, returning the row id; an id of 0 with
// a nil error means the backend refused the write.
type Store interface {
	LoadRules(ctx context.Context) ([]*Rule, error)
	GetRule(ctx context.Context, id int64) (*Rule, error)
	UpsertRule(ctx context.Context, rule *Rule) (int64, error)
	UpdateRuleMeta(ctx context.Context, id int64, key, value string) error
	DeleteRule(ctx context.Context, id int64) error
}

// Resolver maps an alert type to its notifier. *notifier.Registry satisfies it.
type Resolver interface {
	Resolve(alertType string) (notifier.Notifier, error)
}

// ValidateFunc checks a rule before it is written.
type ValidateFunc func(*Rule) error

// Repository maps rules to and from a Store.
type Repository struct {
	store    Store
	validate ValidateFunc
	resolver Resolver
}

// Option configures a Repository.
type Option func(*Repository)

// WithValidator replaces the default validator.
func WithValidator(fn ValidateFunc) Option {
	return func(r *Repository) { r.validate = fn }
}

// WithResolver sets the resolver used to attach notifiers on load and to
// check alert types on save.
func WithResolver(res Resolver) Option {
	return func(r *Repository) { r.resolver = res }
}

// NewRepository creates a repository over store.
func NewRepository(store Store, opts ...Option) *Repository {
	r := &Repository{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.validate == nil {
		r.validate = r.defaultValidate
	}
	return r
}

// Validate runs the configured validator.
func (r *Repository) Validate(rule *Rule) error {
	if rule == nil {
		return &ValidationError{Reason: "rule is nil"}
	}
	return r.validate(rule)
}

func (r *Repository) defaultValidate(rule *Rule) error {
	if strings.TrimSpace(rule.AlertType) == "" {
		return &ValidationError{Field: KeyAlertType, Reason: "cannot be empty"}
	}
	if r.resolver != nil {
		if _, err := r.resolver.Resolve(rule.AlertType); err != nil {
			return &ValidationError{Field: KeyAlertType, Reason: fmt.Sprintf("%q is not a registered notifier", rule.AlertType)}
		}
	}
	return nil
}

// Save validates and upserts the rule, then writes each meta key.
//
// It returns a *ValidationError without touching the store when validation
// fails, and (false, nil) when the store declines the row write; the rule is
// not modified in either case. After a successful row write a new rule
// receives its id and every key in MetaKeys is written individually. Meta
// failures do not undo the row: Save returns true with a *MetaWriteError.
func (r *Repository) Save(ctx context.Context, rule *Rule) (bool, error) {
	if err := r.Validate(rule); err != nil {
		return false, err
	}

	id, err := r.store.UpsertRule(ctx, rule)
	if err != nil {
		return false, fmt.Errorf("failed to save alert rule: %w", err)
	}
	if id <= 0 {
		slog.Warn("Store declined alert rule write", "alert_id", rule.ID, "alert_type", rule.AlertType)
		return false, nil
	}
	if rule.ID == 0 {
		rule.ID = id
	}

	var failed []string
	var errs []error
	for _, key := range MetaKeys {
		value, err := rule.MetaValue(key)
		if err == nil {
			err = r.store.UpdateRuleMeta(ctx, rule.ID, key, value)
		}
		if err != nil {
			slog.Error("Failed to write alert meta",
				"alert_id", rule.ID,
				"meta_key", key,
				"error", err,
			)
			failed = append(failed, key)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return true, &MetaWriteError{RuleID: rule.ID, Keys: failed, Err: errors.Join(errs...)}
	}

	slog.Debug("Saved alert rule", "alert_id", rule.ID, "alert_type", rule.AlertType)
	return true, nil
}

// Load returns every stored rule with its notifier attached. Rules whose
// alert type cannot be resolved are kept with a nil notifier.
func (r *Repository) Load(ctx context.Context) ([]*Rule, error) {
	rules, err := r.store.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert rules: %w", err)
	}
	for _, rule := range rules {
		r.attach(rule)
	}
	return rules, nil
}

// Get returns one rule with its notifier attached.
func (r *Repository) Get(ctx context.Context, id int64) (*Rule, error) {
	rule, err := r.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	r.attach(rule)
	return rule, nil
}

// Delete removes a rule and its meta.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if err := r.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete alert rule %d: %w", id, err)
	}
	return nil
}

func (r *Repository) attach(rule *Rule) {
	if r.resolver == nil || rule == nil {
		return
	}
	n, err := r.resolver.Resolve(rule.AlertType)
	if err != nil {
		slog.Warn("No notifier for alert type",
			"alert_id", rule.ID,
			"alert_type", rule.AlertType,
			"error", err,
		)
		rule.Notifier = nil
		return
	}
	rule.Notifier = n
}
