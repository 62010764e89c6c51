package ui

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/scrobblex/internal/tasks"
)

func TestProgressModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Updates move the phase and bar", func(t *testing.T) {
		m := NewProgressModel(ctx, "Scrobble sync", nil)

		m.Update(updateMsg{Phase: tasks.Assemble, Step: 1, Total: 1, Message: "Assembled 3 pending events (0 filtered)"})
		_, cmd := m.Update(updateMsg{Phase: tasks.DeliverReads, Step: 2, Total: 3, Message: "[2/3] chapter_read series s2"})
		assert.NotNil(t, cmd)

		assert.Equal(t, tasks.DeliverReads, m.current.Phase)
		view := m.View()
		assert.Contains(t, view, "Scrobble sync")
		assert.Contains(t, view, "Delivering reads (2/3)")
		assert.Contains(t, view, "Assembled 3 pending events")
	})

	t.Run("History keeps the latest messages", func(t *testing.T) {
		m := NewProgressModel(ctx, "Backfill", nil)
		for i := 1; i <= historySize+2; i++ {
			m.Update(updateMsg{Phase: tasks.Backfill, Step: i, Total: i, Message: fmt.Sprintf("user %d", i)})
		}

		require.Len(t, m.history, historySize)
		assert.Equal(t, fmt.Sprintf("user %d", historySize+2), m.history[historySize-1])
	})

	t.Run("Quit key cancels the work", func(t *testing.T) {
		m := NewProgressModel(ctx, "Scrobble sync", nil)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		assert.Nil(t, cmd, "the view waits for the work to settle")
		assert.True(t, m.Stopped())
		assert.ErrorIs(t, m.ctx.Err(), context.Canceled)
		assert.Contains(t, m.View(), "Stopping")
	})

	t.Run("Finished work quits the program", func(t *testing.T) {
		m := NewProgressModel(ctx, "Scrobble sync", nil)
		failure := errors.New("sync failed")

		_, cmd := m.Update(doneMsg{err: failure})
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.ErrorIs(t, m.Err(), failure)
		assert.Empty(t, m.View())
	})

	t.Run("Work updates arrive as messages", func(t *testing.T) {
		failure := errors.New("unreachable")
		m := NewProgressModel(ctx, "Scrobble sync", func(ctx context.Context, progress chan<- tasks.ProgressUpdate) error {
			progress <- tasks.ProgressUpdate{Phase: tasks.Prefetch, Step: 1, Total: 1, Message: "Resolving quota for 1 users..."}
			return failure
		})

		msg := m.start()()
		update, ok := msg.(updateMsg)
		require.True(t, ok, "expected an update, got %T", msg)
		assert.Equal(t, tasks.Prefetch, update.Phase)

		msg = m.waitForProgress()()
		done, ok := msg.(doneMsg)
		require.True(t, ok, "expected completion, got %T", msg)
		assert.ErrorIs(t, done.err, failure)
	})
}

func TestPhaseLabel(t *testing.T) {
	tc := []struct {
		update tasks.ProgressUpdate
		want   string
	}{
		{tasks.ProgressUpdate{Phase: tasks.Assemble}, "Assembling pending events"},
		{tasks.ProgressUpdate{Phase: tasks.DeliverRatings, Step: 1, Total: 4}, "Delivering ratings (1/4)"},
		{tasks.ProgressUpdate{Phase: tasks.DeliverWantToRead, Step: 2, Total: 2}, "Delivering want-to-read changes (2/2)"},
		{tasks.ProgressUpdate{Phase: tasks.Backfill, Step: 1, Total: 3}, "Backfilling users (1/3)"},
		{tasks.ProgressUpdate{Phase: tasks.Phase(99)}, "Working..."},
	}

	for _, tt := range tc {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, phaseLabel(tt.update))
		})
	}
}
