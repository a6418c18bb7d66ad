// Package retry classifies persistence failures as transient or permanent
// and runs operations under a bounded exponential backoff policy.
//
// Transient failures (dropped connections, deadlocks, serialization aborts,
// upstream 503s) are retried with jittered exponential backoff. Permanent
// failures (constraint violations, validation rejections) short-circuit on
// the first attempt so callers can route them to the dead letter queue
// without burning retry budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/fleetyard/eldcore/internal/logger"
)

// Default policy values, applied by Policy.withDefaults when unset.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second

	// maxJitter caps the random component added to each backoff wait.
	maxJitter = 500 * time.Millisecond
)

// Classification describes whether a failure is worth retrying.
type Classification int

const (
	// Permanent failures fail the same way on every attempt: constraint
	// violations, validation rejections, business-rule conflicts.
	Permanent Classification = iota

	// Transient failures are infrastructure hiccups that tend to clear on
	// their own: dropped connections, deadlocks, upstream overload.
	Transient
)

// String returns the classification name used in logs and DLQ entries.
func (c Classification) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// transientPatterns are matched case-insensitively against the error text.
// The list covers network failures (both errno names and the Go runtime's
// textual forms), database coordination failures that clear on re-execution,
// and upstream overload responses. Everything else is permanent.
var transientPatterns = []string{
	"econnrefused",
	"connection refused",
	"etimedout",
	"i/o timeout",
	"enotfound",
	"no such host",
	"enetunreach",
	"network is unreachable",
	"econnreset",
	"connection reset",
	"socket closed",
	"socket hang up",
	"broken pipe",
	"fetch failed",

	"deadlock detected",
	"could not serialize access",
	"serialization failure",
	"too many connections",
	"too many clients",
	"server closed the connection",
	"driver: bad connection",

	"503",
	"service unavailable",
}

// Classify reports whether err is a transient infrastructure failure or a
// permanent one. Context cancellation is permanent: the caller gave up, so
// retrying is pointless.
func Classify(err error) Classification {
	if err == nil {
		return Permanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return Transient
		}
	}

	return Permanent
}

// Policy controls how many times an operation runs and how long Do waits
// between attempts.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry. Each subsequent wait
	// doubles, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component of the wait.
	MaxDelay time.Duration
}

// DefaultPolicy returns the ingestion pipeline's standard retry policy:
// three attempts, 1s base delay, 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// withDefaults fills unset fields so a zero Policy behaves like DefaultPolicy.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// backoff returns the wait before the k-th retry (1-based): the base delay
// doubled per retry, capped at MaxDelay, plus uniform jitter of at most
// min(BaseDelay/2, 500ms) so concurrent retries don't stampede.
func (p Policy) backoff(k int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < k; i++ {
		d *= 2
		if d >= float64(p.MaxDelay) {
			break
		}
	}
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	wait := time.Duration(d)
	jitterCap := p.BaseDelay / 2
	if jitterCap > maxJitter {
		jitterCap = maxJitter
	}
	if jitterCap > 0 {
		wait += rand.N(jitterCap + 1)
	}
	return wait
}

// Failure is the error returned by Do and DoValue when an operation's retry
// budget is exhausted or a permanent failure short-circuits the run. It
// carries the attempt count and classification the DLQ writer records.
type Failure struct {
	Op             string
	Attempts       int
	Classification Classification
	Err            error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) (%s): %v", f.Op, f.Attempts, f.Classification, f.Err)
}

// Unwrap returns the final attempt's error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Do runs fn under the policy, retrying transient failures with jittered
// exponential backoff. Permanent failures and context cancellation return
// immediately. On failure the returned error is a *Failure wrapping the last
// attempt's error.
func Do(ctx context.Context, policy Policy, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, policy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue runs fn under the policy and returns its result. See Do.
func DoValue[T any](ctx context.Context, policy Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p := policy.withDefaults()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := p.backoff(attempt - 1)
			logger.Debug("backing off before retry",
				"op", op,
				logger.Attempt(attempt),
				logger.MaxAttempts(p.MaxAttempts),
				logger.DelayMs(wait.Milliseconds()),
			)

			select {
			case <-ctx.Done():
				return zero, &Failure{Op: op, Attempts: attempt - 1, Classification: Permanent, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := Classify(err)
		if class == Permanent {
			logger.Debug("permanent failure, not retrying",
				"op", op,
				logger.Attempt(attempt),
				logger.Classification(class.String()),
				logger.Err(err),
			)
			return zero, &Failure{Op: op, Attempts: attempt, Classification: Permanent, Err: err}
		}

		logger.Warn("transient failure",
			"op", op,
			logger.Attempt(attempt),
			logger.MaxAttempts(p.MaxAttempts),
			logger.Classification(class.String()),
			logger.Err(err),
		)
	}

	logger.Error("retry budget exhausted",
		"op", op,
		logger.MaxAttempts(p.MaxAttempts),
		logger.Err(lastErr),
	)
	return zero, &Failure{Op: op, Attempts: p.MaxAttempts, Classification: Transient, Err: lastErr}
}
