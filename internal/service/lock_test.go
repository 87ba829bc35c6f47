package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

func TestKeyedLock(t *testing.T) {
	ctx := context.Background()
	k := newKeyedLock()

	release, err := k.acquire(ctx, "a", 0)
	require.NoError(t, err)

	_, err = k.acquire(ctx, "a", 0)
	assert.ErrorIs(t, err, ErrSessionBusy)

	_, err = k.acquire(ctx, "a", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrSessionBusy)

	other, err := k.acquire(ctx, "b", 0)
	require.NoError(t, err)
	other()

	release()
	release()
	assert.Equal(t, 0, k.size())

	again, err := k.acquire(ctx, "a", 0)
	require.NoError(t, err)
	again()
}

func TestKeyedLock_WaitCanceled(t *testing.T) {
	k := newKeyedLock()
	release, err := k.acquire(context.Background(), "a", 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = k.acquire(ctx, "a", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, k.size())
}

func TestTransitions(t *testing.T) {
	sc := domain.SessionContext{State: domain.StateAwaitingInput}
	for _, to := range []domain.SessionState{
		domain.StateExtracting,
		domain.StateEnriching,
		domain.StateAssembling,
		domain.StatePlanLinked,
		domain.StateAwaitingInput,
	} {
		require.NoError(t, transition(&sc, to))
	}

	assert.Error(t, transition(&sc, domain.StateEnriching))
	assert.Error(t, transition(&sc, domain.StatePlanLinked))
	assert.Equal(t, domain.StateAwaitingInput, sc.State)

	sc.State = domain.StateEnriching
	assert.NoError(t, transition(&sc, domain.StateAwaitingInput))
}
