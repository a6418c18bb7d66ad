package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastPolicy keeps test backoffs in the microsecond range.
func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "operation timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"nil", nil, Permanent},
		{"connection refused", errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"), Transient},
		{"errno name", errors.New("ECONNREFUSED"), Transient},
		{"connection reset", errors.New("read tcp: connection reset by peer"), Transient},
		{"io timeout", errors.New("read tcp 10.0.0.5:5432: i/o timeout"), Transient},
		{"no such host", errors.New("dial tcp: lookup db.internal: no such host"), Transient},
		{"network unreachable", errors.New("connect: network is unreachable"), Transient},
		{"socket hang up", errors.New("socket hang up"), Transient},
		{"broken pipe", errors.New("write: broken pipe"), Transient},
		{"deadlock", errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), Transient},
		{"serialization", errors.New("ERROR: could not serialize access due to concurrent update (SQLSTATE 40001)"), Transient},
		{"too many clients", errors.New("FATAL: sorry, too many clients already"), Transient},
		{"server closed", errors.New("FATAL: the database system is shutting down: server closed the connection unexpectedly"), Transient},
		{"bad connection", errors.New("driver: bad connection"), Transient},
		{"http 503", errors.New("unexpected status 503 Service Unavailable"), Transient},
		{"mixed case", errors.New("Connection Refused by upstream"), Transient},
		{"wrapped transient", fmt.Errorf("insert event: %w", errors.New("connection reset by peer")), Transient},
		{"unique violation", errors.New(`ERROR: duplicate key value violates unique constraint "idx_events_active_seq" (SQLSTATE 23505)`), Permanent},
		{"check violation", errors.New("CHECK constraint failed: sequence_id"), Permanent},
		{"plain failure", errors.New("invalid latitude"), Permanent},
		{"context canceled", context.Canceled, Permanent},
		{"deadline exceeded", context.DeadlineExceeded, Permanent},
		{"wrapped cancellation", fmt.Errorf("persist: %w", context.Canceled), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyNetTimeout(t *testing.T) {
	// A net.Error reporting Timeout() is transient even when its text
	// matches none of the substring patterns.
	err := fmt.Errorf("fetch block: %w", fakeTimeoutError{})
	assert.Equal(t, Transient, Classify(err))
}

func TestClassificationString(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "permanent", Permanent.String())
}

func TestDoFirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), "insert", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), "insert", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("read tcp: connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoPermanentShortCircuits(t *testing.T) {
	sentinel := errors.New(`duplicate key value violates unique constraint "idx_events_active_seq"`)
	calls := 0
	err := Do(context.Background(), fastPolicy(), "insert", func(ctx context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "insert", failure.Op)
	assert.Equal(t, 1, failure.Attempts)
	assert.Equal(t, Permanent, failure.Classification)
	assert.ErrorIs(t, err, sentinel)
}

func TestDoExhaustsBudget(t *testing.T) {
	sentinel := errors.New("dial tcp: connection refused")
	calls := 0
	err := Do(context.Background(), fastPolicy(), "insert", func(ctx context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, Transient, failure.Classification)
	assert.ErrorIs(t, err, sentinel)
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Second, MaxDelay: 30 * time.Second}

	start := time.Now()
	calls := 0
	err := Do(ctx, policy, "insert", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("connection reset by peer")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation should interrupt the backoff wait")
}

func TestDoValueReturnsResult(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), fastPolicy(), "lookup", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("i/o timeout")
		}
		return "event-42", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "event-42", got)
	assert.Equal(t, 2, calls)
}

func TestDoZeroPolicyUsesDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, p.MaxDelay)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestBackoffGrowthAndCap(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	// The deterministic component doubles per retry; jitter adds at most
	// min(BaseDelay/2, 500ms).
	tests := []struct {
		retry int
		base  time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		for range 20 {
			wait := p.backoff(tt.retry)
			assert.GreaterOrEqual(t, wait, tt.base, "retry %d", tt.retry)
			assert.LessOrEqual(t, wait, tt.base+500*time.Millisecond, "retry %d", tt.retry)
		}
	}
}

func TestBackoffJitterCappedByBaseDelay(t *testing.T) {
	// With a 200ms base the jitter cap is 100ms, not the 500ms ceiling.
	p := Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}
	for range 50 {
		wait := p.backoff(1)
		assert.GreaterOrEqual(t, wait, 200*time.Millisecond)
		assert.LessOrEqual(t, wait, 300*time.Millisecond)
	}
}

func TestFailureMessage(t *testing.T) {
	f := &Failure{Op: "insert", Attempts: 3, Classification: Transient, Err: errors.New("connection refused")}
	assert.Contains(t, f.Error(), "insert")
	assert.Contains(t, f.Error(), "3 attempt(s)")
	assert.Contains(t, f.Error(), "transient")
}
