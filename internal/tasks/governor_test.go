package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/scrobblex/internal/models"
	"github.com/desertthunder/scrobblex/internal/services"
	"github.com/desertthunder/scrobblex/internal/shared"
	tu "github.com/desertthunder/scrobblex/internal/testing"
)

func newTestUser(id, credential string) *models.User {
	user := models.NewUser(id, credential)
	user.SetID(id)
	return user
}

func TestGovernor(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	t.Run("Missing credential is zero quota without a call", func(t *testing.T) {
		tracker := tu.NewFakeTracker()
		g := NewGovernor(tracker, testOptions(), nil, logger)

		remaining, err := g.EnsureQuota(ctx, newTestUser("u1", ""))
		require.NoError(t, err)
		assert.Zero(t, remaining)
		assert.Empty(t, tracker.QuotaCalls())
		assert.True(t, g.Exhausted("u1"))
	})

	t.Run("Quota is cached after first reference", func(t *testing.T) {
		tracker := tu.NewFakeTracker()
		tracker.SetQuota("token", 7)
		g := NewGovernor(tracker, testOptions(), nil, logger)
		user := newTestUser("u1", "token")

		for range 3 {
			remaining, err := g.EnsureQuota(ctx, user)
			require.NoError(t, err)
			assert.Equal(t, 7, remaining)
		}
		assert.Len(t, tracker.QuotaCalls(), 1)

		g.Update("u1", 2)
		remaining, ok := g.Remaining("u1")
		assert.True(t, ok)
		assert.Equal(t, 2, remaining)
	})

	t.Run("Prefetch resolves every user", func(t *testing.T) {
		tracker := tu.NewFakeTracker()
		users := []*models.User{
			newTestUser("a", "token-a"),
			newTestUser("b", "token-b"),
			newTestUser("c", ""),
			newTestUser("d", "token-d"),
			newTestUser("e", "token-e"),
		}
		for i, u := range users {
			tracker.SetQuota(u.Credential(), i+1)
		}

		g := NewGovernor(tracker, testOptions(), nil, logger)
		require.NoError(t, g.Prefetch(ctx, users))

		assert.ElementsMatch(t, []string{"token-a", "token-b", "token-d", "token-e"}, tracker.QuotaCalls())
		for i, u := range users {
			remaining, ok := g.Remaining(u.ID())
			assert.True(t, ok)
			if u.HasCredential() {
				assert.Equal(t, i+1, remaining)
			}
		}
	})

	t.Run("Prefetch returns fatal errors", func(t *testing.T) {
		tracker := tu.NewFakeTracker()
		tracker.QuotaErr = &services.APIError{Message: "connection refused", Err: services.ErrUnreachable}

		g := NewGovernor(tracker, testOptions(), nil, logger)
		err := g.Prefetch(ctx, []*models.User{newTestUser("a", "token")})
		assert.ErrorIs(t, err, services.ErrUnreachable)
	})

	t.Run("Non-fatal lookup failure skips the user", func(t *testing.T) {
		tracker := tu.NewFakeTracker()
		tracker.QuotaErr = errors.New("decode failure")

		g := NewGovernor(tracker, testOptions(), nil, logger)
		remaining, err := g.EnsureQuota(ctx, newTestUser("a", "token"))
		require.NoError(t, err)
		assert.Zero(t, remaining)
	})

	t.Run("Pause", func(t *testing.T) {
		tc := []struct {
			name      string
			remaining int
			naps      []time.Duration
		}{
			{name: "above low water is paced", remaining: 11, naps: nil},
			{name: "at low water pauses", remaining: 10, naps: []time.Duration{time.Minute}},
			{name: "exhausted pauses", remaining: 0, naps: []time.Duration{time.Minute}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				sleeper := &tu.RecordingSleeper{}
				g := NewGovernor(tu.NewFakeTracker(), testOptions(), sleeper.Sleep, logger)

				require.NoError(t, g.Pause(ctx, tt.remaining))
				assert.Equal(t, tt.naps, sleeper.Naps())
			})
		}
	})

	t.Run("Pause is cancellable", func(t *testing.T) {
		sleeper := &tu.RecordingSleeper{Block: true}
		g := NewGovernor(tu.NewFakeTracker(), testOptions(), sleeper.Sleep, logger)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, g.Pause(cctx, 0), context.Canceled)
	})

	t.Run("Default sleep honors context", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := timeSleep(cctx, time.Hour)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}
