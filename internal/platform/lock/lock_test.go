package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	token, err := l.TryLock(ctx, "scheduler", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := l.TryLock(ctx, "scheduler", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second, "second holder must not acquire the lease")

	require.NoError(t, l.Unlock(ctx, "scheduler", token))

	third, err := l.TryLock(ctx, "scheduler", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

func TestLocalLocker_UnlockWithoutHold(t *testing.T) {
	l := NewLocalLocker()
	assert.ErrorIs(t, l.Unlock(context.Background(), "scheduler", "x"), ErrNotOwner)
}

func TestRedisLocker_KeyPrefix(t *testing.T) {
	l := NewRedisLocker(nil, "pathway:")
	assert.Equal(t, "pathway:scheduler", l.key("scheduler"))
}
