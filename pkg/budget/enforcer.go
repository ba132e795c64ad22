package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/tracker"
)

// ErrBudgetExceeded is returned when a client has used up a budget policy.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// Enforcer checks token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t}
}

// Check returns ErrBudgetExceeded if the client has exhausted any applicable
// policy. Provider-scoped policies apply only when the request pins that
// provider.
func (e *Enforcer) Check(ctx context.Context, client string, provider models.ProviderName) error {
	for _, p := range e.applicablePolicies(client, provider) {
		used, err := e.used(ctx, client, p)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return fmt.Errorf("%s budget of %d tokens: %w", p.Period, p.MaxTokens, ErrBudgetExceeded)
		}
	}
	return nil
}

// Status returns the budget status for a client across all matching policies.
func (e *Enforcer) Status(ctx context.Context, client string) ([]models.BudgetStatus, error) {
	policies := e.policiesForClient(client)
	statuses := make([]models.BudgetStatus, 0, len(policies))

	for _, p := range policies {
		used, err := e.used(ctx, client, p)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: max(p.MaxTokens-used, 0),
		})
	}
	return statuses, nil
}

// Policies returns the configured policies.
func (e *Enforcer) Policies() []models.BudgetPolicy {
	return e.policies
}

func (e *Enforcer) used(ctx context.Context, client string, p models.BudgetPolicy) (int64, error) {
	since := periodStart(p.Period, time.Now().UTC())
	if p.Provider != "" {
		return e.tracker.TotalByClientAndProvider(ctx, client, p.Provider, since)
	}
	return e.tracker.TotalByClient(ctx, client, since)
}

// policiesForClient returns all policies matching a client, ignoring provider scope.
func (e *Enforcer) policiesForClient(client string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if p.Client == "*" || p.Client == client {
			result = append(result, p)
		}
	}
	return result
}

func (e *Enforcer) applicablePolicies(client string, provider models.ProviderName) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policiesForClient(client) {
		if p.Provider == "" || p.Provider == provider {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.BudgetPeriod, now time.Time) time.Time {
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
