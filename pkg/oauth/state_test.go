package oauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/storage"
)

func TestStateSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := NewStateManager(storage.NewMemoryStore(), DefaultKeyPrefix)

	value, err := mgr.Begin(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, value)

	// Verify succeeds exactly once per Begin.
	require.NoError(t, mgr.Verify(ctx, "u1", value))

	// The same value can never be replayed.
	err = mgr.Verify(ctx, "u1", value)
	assert.True(t, errors.IsStateMismatch(err))
}

func TestStateVerifyMismatchConsumes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := NewStateManager(storage.NewMemoryStore(), DefaultKeyPrefix)

	value, err := mgr.Begin(ctx, "u1")
	require.NoError(t, err)

	// A failed comparison still burns the stored value.
	err = mgr.Verify(ctx, "u1", "wrong")
	require.True(t, errors.IsStateMismatch(err))

	err = mgr.Verify(ctx, "u1", value)
	assert.True(t, errors.IsStateMismatch(err),
		"correct value must not verify after a failed attempt consumed it")
}

func TestStateVerifyWithoutBegin(t *testing.T) {
	t.Parallel()

	mgr := NewStateManager(storage.NewMemoryStore(), DefaultKeyPrefix)
	err := mgr.Verify(context.Background(), "u1", "anything")
	assert.True(t, errors.IsStateMismatch(err))
}

func TestStateNewAttemptOverwritesPrior(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := NewStateManager(storage.NewMemoryStore(), DefaultKeyPrefix)

	first, err := mgr.Begin(ctx, "u1")
	require.NoError(t, err)
	second, err := mgr.Begin(ctx, "u1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Only the most recent attempt can succeed.
	err = mgr.Verify(ctx, "u1", first)
	assert.True(t, errors.IsStateMismatch(err))

	// The failed verification consumed the stored value; the second attempt
	// is gone too.
	err = mgr.Verify(ctx, "u1", second)
	assert.True(t, errors.IsStateMismatch(err))
}

func TestStateSubjectsAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := NewStateManager(storage.NewMemoryStore(), DefaultKeyPrefix)

	v1, err := mgr.Begin(ctx, "u1")
	require.NoError(t, err)
	v2, err := mgr.Begin(ctx, "u2")
	require.NoError(t, err)

	// One subject's value never verifies under another subject.
	err = mgr.Verify(ctx, "u2", v1)
	require.True(t, errors.IsStateMismatch(err))

	// u1's pending state is untouched by u2's consumption.
	require.NoError(t, mgr.Verify(ctx, "u1", v1))
	// u2's was consumed by the mismatch above.
	err = mgr.Verify(ctx, "u2", v2)
	assert.True(t, errors.IsStateMismatch(err))
}

func TestStateValueEntropy(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		value, err := newStateValue()
		require.NoError(t, err)
		// 16 random bytes base64 (22 chars) + 32-char UUID hex + timestamp.
		assert.GreaterOrEqual(t, len(value), 54)
		assert.NotContains(t, value, stateSeparator)
		_, dup := seen[value]
		require.False(t, dup, "state values must never repeat")
		seen[value] = struct{}{}
	}
}

func TestStateParamEncoding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc123|u1", EncodeStateParam("abc123", "u1"))
	assert.Equal(t, "abc123", EncodeStateParam("abc123", ""))

	csrf, subject := DecodeStateParam("abc123|u1")
	assert.Equal(t, "abc123", csrf)
	assert.Equal(t, "u1", subject)

	csrf, subject = DecodeStateParam("abc123")
	assert.Equal(t, "abc123", csrf)
	assert.Empty(t, subject)

	// Subjects containing the separator keep their tail intact.
	csrf, subject = DecodeStateParam("abc123|u|1")
	assert.Equal(t, "abc123", csrf)
	assert.Equal(t, "u|1", subject)
}

func TestAnonymousStateUsesReservedNamespace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	mgr := NewStateManager(store, DefaultKeyPrefix)

	value, err := mgr.Begin(ctx, "")
	require.NoError(t, err)

	stored, err := store.Get(ctx, "photolink.anonymous.oauthState")
	require.NoError(t, err)
	assert.Equal(t, value, stored)

	require.NoError(t, mgr.Verify(ctx, "", value))
}
