package gemini

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPool_CurrentKeyEmptyPool(t *testing.T) {
	pool := NewKeyPool(nil, 0)

	assert.Equal(t, PlaceholderKey, pool.CurrentKey())
	assert.Equal(t, PlaceholderKey, pool.Advance())
	assert.Equal(t, 0, pool.Size())

	// Must not panic on an empty pool.
	pool.MarkCurrentFailed()
	pool.MarkFailed(3)
}

func TestKeyPool_AdvanceSkipsFailed(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2", "k3"}, 0)

	require.Equal(t, "k1", pool.CurrentKey())

	// Failing k2 means advancing from k1 lands on k3.
	pool.MarkFailed(1)
	assert.Equal(t, "k3", pool.Advance())
	assert.Equal(t, "k3", pool.CurrentKey())
}

func TestKeyPool_MarkCurrentFailedDoesNotMoveCursor(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2"}, 0)

	pool.MarkCurrentFailed()
	assert.Equal(t, "k1", pool.CurrentKey())

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.CurrentIndex)
}

// Pool liveness: any interleaving of failure marks and advances always
// yields a credential within one traversal.
func TestKeyPool_Liveness(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2", "k3", "k4"}, 0)

	for i := 0; i < 50; i++ {
		pool.MarkCurrentFailed()
		key := pool.Advance()
		require.NotEmpty(t, key)
		require.Contains(t, []string{"k1", "k2", "k3", "k4"}, key)
	}
}

// Forced recovery: once every credential is failed, the next advance clears
// all marks and returns credential index 0.
func TestKeyPool_ForcedRecovery(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2", "k3"}, 0)

	for i := 0; i < 3; i++ {
		pool.MarkFailed(i)
	}
	require.Equal(t, 3, pool.Stats().Failed)

	assert.Equal(t, "k1", pool.Advance())

	stats := pool.Stats()
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.CurrentIndex)
	assert.Equal(t, 3, stats.Available)
}

func TestKeyPool_ResetWindowClearsFailures(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2"}, 30*time.Millisecond)

	pool.MarkFailed(1)
	time.Sleep(50 * time.Millisecond)

	// The elapsed reset window rehabilitates k2.
	assert.Equal(t, "k2", pool.Advance())
	assert.Equal(t, 0, pool.Stats().Failed)
}

func TestKeyPool_NextAfterSkipsFailedWithoutMovingCursor(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2", "k3"}, 0)

	pool.MarkFailed(1)
	idx, key := pool.NextAfter(0)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "k3", key)

	// The shared cursor is untouched.
	assert.Equal(t, "k1", pool.CurrentKey())
}

func TestKeyPool_NextAfterForcedRecovery(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2"}, 0)

	pool.MarkFailed(0)
	pool.MarkFailed(1)

	idx, key := pool.NextAfter(0)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "k1", key)
	assert.Equal(t, 0, pool.Stats().Failed)
}

func TestKeyPool_KeyAtWraps(t *testing.T) {
	pool := NewKeyPool([]string{"k1", "k2", "k3"}, 0)

	assert.Equal(t, "k1", pool.KeyAt(0))
	assert.Equal(t, "k2", pool.KeyAt(4))
	assert.Equal(t, "k3", pool.KeyAt(-1))
}
