package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/rules"
)

func TestRunLocksContention(t *testing.T) {
	t.Parallel()

	locks := newRunLocks()
	key := runKey{source: "9", useCase: rules.UseCaseEnter}

	release, ok := locks.acquire(key, 50*time.Millisecond)
	require.True(t, ok)

	// A second caller for the same key times out inside its deadline.
	start := time.Now()
	_, ok = locks.acquire(key, 50*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)

	// Different keys never contend.
	other, ok := locks.acquire(runKey{source: "9", useCase: rules.UseCaseManage}, 50*time.Millisecond)
	require.True(t, ok)
	other()

	release()

	release, ok = locks.acquire(key, 50*time.Millisecond)
	assert.True(t, ok)
	release()
}
