package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries uint64) Policy {
	return Policy{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	var observed []error

	err := Do(context.Background(), fastPolicy(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	}, func(err error, _ time.Duration) {
		observed = append(observed, err)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, observed, 2)
}

func TestDo_StopsAfterRetryBudget(t *testing.T) {
	attempts := 0
	boom := errors.New("connection refused")

	err := Do(context.Background(), fastPolicy(2), func() error {
		attempts++
		return boom
	}, nil)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts, "one initial attempt plus two retries")
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	attempts := 0
	violation := errors.New("foreign key violation")

	err := Do(context.Background(), fastPolicy(5), func() error {
		attempts++
		return Permanent(violation)
	}, nil)

	require.ErrorIs(t, err, violation)
	assert.Equal(t, 1, attempts)
}

func TestDo_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, fastPolicy(5), func() error {
		attempts++
		return errors.New("timeout")
	}, nil)

	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
