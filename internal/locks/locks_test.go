package locks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryAcquireRelease(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	token, err := reg.Acquire(ctx, "Video", "abc", "processing", time.Minute)
	require.NoError(t, err)
	assert.True(t, reg.IsHeld(ctx, "Video", "abc", "processing"))

	_, err = reg.Acquire(ctx, "Video", "abc", "processing", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyHeld)

	require.NoError(t, reg.Release(ctx, token))
	assert.False(t, reg.IsHeld(ctx, "Video", "abc", "processing"))
}

func TestMemoryRegistryActionsAreIndependent(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, err := reg.Acquire(ctx, "Video", "abc", "processing", time.Minute)
	require.NoError(t, err)

	_, err = reg.Acquire(ctx, "Video", "abc", "updating", time.Minute)
	assert.NoError(t, err)
	_, err = reg.Acquire(ctx, "Playlist", "abc", "processing", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryRegistryTTLExpiry(t *testing.T) {
	reg := NewMemoryRegistry()
	now := time.Now()
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := reg.Acquire(ctx, "Video", "abc", "processing", time.Hour)
	require.NoError(t, err)
	assert.True(t, reg.IsHeld(ctx, "Video", "abc", "processing"))

	now = now.Add(time.Hour + time.Second)
	assert.False(t, reg.IsHeld(ctx, "Video", "abc", "processing"))

	// Expired locks can be re-acquired.
	_, err = reg.Acquire(ctx, "Video", "abc", "processing", time.Hour)
	assert.NoError(t, err)
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	token, err := reg.Acquire(ctx, "Video", "abc", "processing", time.Minute)
	require.NoError(t, err)

	// A token for the same key but a different value must not unlock.
	stale := Token{key: token.key, value: "other"}
	require.NoError(t, reg.Release(ctx, stale))
	assert.True(t, reg.IsHeld(ctx, "Video", "abc", "processing"))
}

func TestLockKeyFormat(t *testing.T) {
	assert.Equal(t, "Video-abc-processing", LockKey("Video", "abc", "processing"))
}

func TestAcquireDefaultsTTL(t *testing.T) {
	reg := NewMemoryRegistry()
	now := time.Now()
	reg.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := reg.Acquire(ctx, "Video", "abc", "processing", 0)
	require.NoError(t, err)

	now = now.Add(DefaultTTL - time.Minute)
	assert.True(t, reg.IsHeld(ctx, "Video", "abc", "processing"))
	now = now.Add(2 * time.Minute)
	assert.False(t, reg.IsHeld(ctx, "Video", "abc", "processing"))
}
