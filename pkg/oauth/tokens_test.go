// SPDX-FileCopyrightText: Copyright 2026 Jotter HQ
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/storage"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := storage.NewMemoryStore()
	store := NewTokenStore(mem, DefaultKeyPrefix)

	expiry := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	record := &TokenRecord{
		Subject:       "u1",
		AccessToken:   "AT1",
		RefreshToken:  "RT1",
		ExpiresAt:     expiry,
		GrantedScopes: []string{"photos.readonly"},
	}
	require.NoError(t, store.Save(ctx, record))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", loaded.Subject)
	assert.Equal(t, "AT1", loaded.AccessToken)
	assert.Equal(t, "RT1", loaded.RefreshToken)
	assert.True(t, expiry.Equal(loaded.ExpiresAt))
	assert.Equal(t, []string{"photos.readonly"}, loaded.GrantedScopes)
}

func TestTokenStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store := NewTokenStore(storage.NewMemoryStore(), DefaultKeyPrefix)
	_, err := store.Load(context.Background(), "nobody")
	assert.True(t, errors.IsNotConnected(err))
}

func TestTokenStoreKeyLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := storage.NewMemoryStore()
	store := NewTokenStore(mem, DefaultKeyPrefix)

	record := &TokenRecord{
		Subject:       "jo@example.com",
		AccessToken:   "AT1",
		RefreshToken:  "RT1",
		ExpiresAt:     time.UnixMilli(1767225600000),
		GrantedScopes: []string{"photos.readonly"},
	}
	require.NoError(t, store.Save(ctx, record))

	// Field-per-key layout with the normalized subject key.
	got, err := mem.Get(ctx, "photolink.jo_example_com.accessToken")
	require.NoError(t, err)
	assert.Equal(t, "AT1", got)

	// expiresAt is stored as epoch milliseconds, numeric string.
	got, err = mem.Get(ctx, "photolink.jo_example_com.expiresAt")
	require.NoError(t, err)
	assert.Equal(t, "1767225600000", got)

	got, err = mem.Get(ctx, "photolink.jo_example_com.subjectId")
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", got)
}

func TestTokenStoreSaveKeepsRefreshTokenWhenOmitted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTokenStore(storage.NewMemoryStore(), DefaultKeyPrefix)

	require.NoError(t, store.Save(ctx, &TokenRecord{
		Subject:      "u1",
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	// Providers commonly omit rotation; a save without a refresh token must
	// not clobber the stored one.
	require.NoError(t, store.Save(ctx, &TokenRecord{
		Subject:     "u1",
		AccessToken: "AT2",
		ExpiresAt:   time.Now().Add(2 * time.Hour),
	}))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "AT2", loaded.AccessToken)
	assert.Equal(t, "RT1", loaded.RefreshToken)
}

func TestTokenStorePurgeLeavesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := storage.NewMemoryStore()
	store := NewTokenStore(mem, DefaultKeyPrefix)
	states := NewStateManager(mem, DefaultKeyPrefix)

	require.NoError(t, store.Save(ctx, &TokenRecord{
		Subject:       "u1",
		AccessToken:   "AT1",
		RefreshToken:  "RT1",
		ExpiresAt:     time.Now().Add(time.Hour),
		GrantedScopes: []string{"photos.readonly"},
	}))
	_, err := states.Begin(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, store.Purge(ctx, "u1"))

	_, err = store.Load(ctx, "u1")
	assert.True(t, errors.IsNotConnected(err))
	// Pending CSRF state is cleared along with the credentials.
	assert.Equal(t, 0, mem.Len())
}

func TestTokenRecordArithmetic(t *testing.T) {
	t.Parallel()

	now := time.Now()
	record := &TokenRecord{
		AccessToken:   "AT1",
		ExpiresAt:     now.Add(2 * time.Minute),
		GrantedScopes: []string{"photos.readonly", "profile"},
	}

	assert.False(t, record.Expired(now))
	assert.True(t, record.Expired(now.Add(2*time.Minute)))
	assert.True(t, record.Expired(now.Add(3*time.Minute)))

	// 2 minutes out is inside a 5 minute skew.
	assert.True(t, record.ExpiresWithin(now, 5*time.Minute))
	assert.False(t, record.ExpiresWithin(now, time.Minute))

	assert.True(t, record.HasScope("photos.readonly"))
	assert.False(t, record.HasScope("photos.append"))
}
