package toast

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAppendsWithUniqueIDs(t *testing.T) {
	q := New(clockwork.NewFakeClock())

	a := q.Add(TypeInfo, "A", "first", Options{})
	b := q.Add(TypeWarning, "B", "second", Options{})
	c := New(clockwork.NewFakeClock()).Add(TypeInfo, "C", "other queue", Options{})

	assert.Greater(t, b, a)
	assert.Greater(t, c, b)

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.Equal(t, b, list[1].ID)
	assert.Equal(t, DefaultDuration, list[0].Duration)
}

func TestAutoExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := New(clock)

	q.Add(TypeInfo, "Saved", "ok", Options{Duration: 5000 * time.Millisecond})

	clock.Advance(4999 * time.Millisecond)
	assert.Equal(t, 1, q.Len())

	clock.Advance(2 * time.Millisecond)
	assert.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManualRemoveCancelsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := New(clock)

	id := q.Add(TypeInfo, "x", "y", Options{Duration: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	assert.True(t, q.Remove(id))
	assert.False(t, q.Remove(id))

	// The stopped timer no longer counts as a waiter.
	require.NoError(t, clock.BlockUntilContext(ctx, 0))
	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, q.Len())
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	q := New(clockwork.NewFakeClock())
	q.Add(TypeInfo, "x", "y", Options{})

	assert.False(t, q.Remove(-42))
	assert.Equal(t, 1, q.Len())
}

func TestStickyNeverExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := New(clock)

	q.Add(TypeError, "Offline", "still trying", Options{Duration: Sticky})
	clock.Advance(time.Hour)

	assert.Equal(t, 1, q.Len())
}

func TestClearAll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := New(clock)
	for i := 0; i < 3; i++ {
		q.Add(TypeInfo, "x", "y", Options{})
	}

	q.ClearAll()
	assert.Equal(t, 0, q.Len())

	// Timers were stopped, so advancing fires nothing.
	clock.Advance(time.Minute)
	assert.Empty(t, q.List())
}

func TestLimitEvictsOldest(t *testing.T) {
	q := New(clockwork.NewFakeClock(), WithLimit(2))

	first := q.Add(TypeInfo, "1", "", Options{})
	second := q.Add(TypeInfo, "2", "", Options{})
	third := q.Add(TypeInfo, "3", "", Options{})

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, third, list[1].ID)
	assert.False(t, q.Remove(first))
}

func TestWithDefaultDuration(t *testing.T) {
	q := New(clockwork.NewFakeClock(), WithDefaultDuration(3*time.Second))
	q.Add(TypeInfo, "x", "y", Options{})

	assert.Equal(t, 3*time.Second, q.List()[0].Duration)
}

func TestListIsSnapshot(t *testing.T) {
	q := New(clockwork.NewFakeClock())
	q.Add(TypeInfo, "x", "y", Options{})

	list := q.List()
	list[0].Title = "changed"

	assert.Equal(t, "x", q.List()[0].Title)
}
