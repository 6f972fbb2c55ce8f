package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return &Scheduler{loc: loc, lastRunDay: make(map[string]string)}
}

func TestDue(t *testing.T) {
	s := newTestScheduler(t)
	at := func(hour, min int) time.Time {
		return time.Date(2026, 8, 24, hour, min, 0, 0, s.loc)
	}

	t.Run("fires inside the window", func(t *testing.T) {
		assert.True(t, s.due("standup", at(9, 3), 9, 0))
	})

	t.Run("fires at most once per day", func(t *testing.T) {
		assert.False(t, s.due("standup", at(9, 4), 9, 0))
	})

	t.Run("fires again the next day", func(t *testing.T) {
		next := time.Date(2026, 8, 25, 9, 0, 0, 0, s.loc)
		assert.True(t, s.due("standup", next, 9, 0))
	})

	t.Run("outside the window does not fire or mark", func(t *testing.T) {
		fresh := newTestScheduler(t)
		assert.False(t, fresh.due("backup", at(3, 30), 3, 0))
		assert.True(t, fresh.due("backup", at(3, 2), 3, 0))
	})

	t.Run("early side of the window counts", func(t *testing.T) {
		fresh := newTestScheduler(t)
		assert.True(t, fresh.due("summary", at(16, 56), 17, 0))
	})

	t.Run("jobs are guarded independently", func(t *testing.T) {
		fresh := newTestScheduler(t)
		assert.True(t, fresh.due("a", at(9, 0), 9, 0))
		assert.True(t, fresh.due("b", at(9, 0), 9, 0))
	})
}
