package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for run completion. Timeout is reported distinctly from a
// provider-side failure so callers can tell the two apart.
var (
	ErrRunFailed  = errors.New("assistant run failed")
	ErrRunTimeout = errors.New("assistant run timed out")
)

const (
	// DefaultPollInterval matches the provider's recommended polling cadence.
	DefaultPollInterval = time.Second
	// DefaultWaitBudget bounds how long a single chat request may wait on a run.
	DefaultWaitBudget = 60 * time.Second
)

// Runner drives a run to completion by polling its status.
type Runner struct {
	client   *Client
	interval time.Duration
	budget   time.Duration
}

// NewRunner builds a runner. Non-positive interval or budget fall back to defaults.
func NewRunner(client *Client, interval, budget time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if budget <= 0 {
		budget = DefaultWaitBudget
	}
	return &Runner{client: client, interval: interval, budget: budget}
}

// WaitForRun polls until the run reaches a terminal state or the wait budget
// elapses. Returns ErrRunTimeout when the budget is exceeded while the run is
// still pending, ErrRunFailed (wrapped with provider detail) on any terminal
// state other than completed, and the context error on cancellation.
func (r *Runner) WaitForRun(ctx context.Context, threadID string, run Run) error {
	deadline := time.Now().Add(r.budget)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if run.Terminal() {
			if run.Status == RunCompleted {
				return nil
			}
			if run.Error.Message != "" {
				return fmt.Errorf("%w: %s (%s)", ErrRunFailed, run.Error.Message, run.Status)
			}
			return fmt.Errorf("%w: status %s", ErrRunFailed, run.Status)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: still %s after %s", ErrRunTimeout, run.Status, r.budget)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		next, err := r.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return fmt.Errorf("poll run %s: %w", run.ID, err)
		}
		run = next
	}
}
