// Package guard gates data loads behind session resolution and retries
// transiently failed fetches once the session has been re-established.
package guard

import (
	"context"
	"sync"
	"time"

	svcerr "github.com/nitemap/nitemap/internal/errors"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/metrics"
	"github.com/nitemap/nitemap/internal/session"
	"github.com/nitemap/nitemap/supabase/client"
)

// Action is a fetch executed under the guard. It receives the session
// snapshot current at the time of invocation.
type Action func(ctx context.Context, snap session.Snapshot) error

// RetryPolicy controls how the guard paces and retries fetches.
type RetryPolicy struct {
	// SettleDelay is waited after session resolution before the first
	// attempt, letting a freshly adopted token propagate.
	SettleDelay time.Duration
	// MaxRetries bounds retries after a transient auth failure.
	MaxRetries int
	// RetryDelay is waited before each retry.
	RetryDelay time.Duration
}

// DefaultRetryPolicy retries once after a transient auth failure.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		SettleDelay: 50 * time.Millisecond,
		MaxRetries:  1,
		RetryDelay:  500 * time.Millisecond,
	}
}

// Guard serializes guarded fetches for one consumer. Concurrent Fetch
// calls on the same instance run one at a time.
type Guard struct {
	session *session.Service
	policy  RetryPolicy
	metrics *metrics.Metrics
	log     *logging.Logger

	mu sync.Mutex
}

// New creates a guard over the given session service. The metrics
// bundle may be nil.
func New(sess *session.Service, policy RetryPolicy, m *metrics.Metrics, log *logging.Logger) *Guard {
	if log == nil {
		log = logging.NewNop()
	}
	return &Guard{
		session: sess,
		policy:  policy,
		metrics: m,
		log:     log.WithComponent("guard"),
	}
}

// Fetch runs the action once the session has resolved. A transient auth
// failure triggers a session re-resolution and up to MaxRetries further
// attempts; any other error is returned as-is from the first attempt.
func (g *Guard) Fetch(ctx context.Context, name string, action Action) error {
	if err := g.session.WaitReady(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := sleepCtx(ctx, g.policy.SettleDelay); err != nil {
		return err
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = action(ctx, g.session.Snapshot())
		if err == nil || !isTransientAuth(err) || attempt >= g.policy.MaxRetries {
			break
		}

		g.log.WithError(err).WithFields(map[string]any{
			"fetch":   name,
			"attempt": attempt + 1,
		}).Warn("transient auth failure, retrying fetch")
		if g.metrics != nil {
			g.metrics.RecordGuardRetry()
		}

		if err := sleepCtx(ctx, g.policy.RetryDelay); err != nil {
			return err
		}
		// The stale token is the likely cause. Re-resolve so the retry
		// runs with a refreshed session.
		g.session.Resolve(ctx)
	}
	return err
}

// Watch runs the action via Fetch, then re-runs it whenever the session
// identity changes. It blocks until the context is cancelled.
func (g *Guard) Watch(ctx context.Context, name string, action Action) error {
	updates := g.session.Subscribe()

	if err := g.Fetch(ctx, name, action); err != nil {
		g.log.WithError(err).Warnf("initial %s fetch failed", name)
	}
	lastUserID := g.session.Snapshot().UserID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			if snap.UserID == lastUserID {
				continue
			}
			lastUserID = snap.UserID
			if err := g.Fetch(ctx, name, action); err != nil {
				g.log.WithError(err).Warnf("%s refetch failed", name)
			}
		}
	}
}

func isTransientAuth(err error) bool {
	if svcerr.IsTransientAuth(err) {
		return true
	}
	if apiErr := client.AsAPIError(err); apiErr != nil {
		return apiErr.IsTransientAuth()
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
