// SPDX-FileCopyrightText: Copyright 2026 Jotter HQ
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/storage"
)

func seedRecord(t *testing.T, flow *Flow, subject string, expiresAt time.Time, refreshToken string) {
	t.Helper()
	require.NoError(t, flow.tokens.Save(context.Background(), &TokenRecord{
		Subject:       subject,
		AccessToken:   "OLD",
		RefreshToken:  refreshToken,
		ExpiresAt:     expiresAt,
		GrantedScopes: []string{testScope},
	}))
}

func TestValidTokenFreshRecord(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	flow := newTestFlow(t, store, "", "")
	seedRecord(t, flow, "u1", time.Now().Add(time.Hour), "RT1")

	token, err := flow.ValidToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "OLD", token)
}

func TestValidTokenNotConnected(t *testing.T) {
	t.Parallel()

	flow := newTestFlow(t, storage.NewMemoryStore(), "", "")

	_, err := flow.ValidToken(context.Background(), "u1")
	assert.True(t, errors.IsNotConnected(err))
}

func TestValidTokenRefreshesNearExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	ts := tokenEndpoint(t, http.StatusOK, map[string]any{
		"access_token": "NEW",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}, nil)

	flow := newTestFlow(t, store, ts.URL, "")
	// Inside the five-minute skew but not yet expired.
	seedRecord(t, flow, "u1", time.Now().Add(time.Minute), "RT1")

	token, err := flow.ValidToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "NEW", token)

	// The rotation-free response kept the original refresh token.
	record, err := flow.tokens.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "RT1", record.RefreshToken)
	assert.False(t, record.ExpiresWithin(time.Now(), 5*time.Minute))
}

func TestValidTokenRefreshRotatesRefreshToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := tokenEndpoint(t, http.StatusOK, map[string]any{
		"access_token":  "NEW",
		"refresh_token": "RT2",
		"token_type":    "Bearer",
		"expires_in":    3600,
	}, nil)

	flow := newTestFlow(t, storage.NewMemoryStore(), ts.URL, "")
	seedRecord(t, flow, "u1", time.Now().Add(time.Minute), "RT1")

	_, err := flow.ValidToken(ctx, "u1")
	require.NoError(t, err)

	record, err := flow.tokens.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "RT2", record.RefreshToken)
}

func TestValidTokenInvalidGrantPurges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	ts := tokenEndpoint(t, http.StatusBadRequest, map[string]any{
		"error": "invalid_grant",
	}, nil)

	flow := newTestFlow(t, store, ts.URL, "")
	seedRecord(t, flow, "u1", time.Now().Add(time.Minute), "RT1")

	_, err := flow.ValidToken(ctx, "u1")
	assert.True(t, errors.IsNotConnected(err))
	assert.Equal(t, 0, store.Len())
}

func TestValidTokenTransientFailureServesUnexpired(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close()

	flow := newTestFlow(t, storage.NewMemoryStore(), ts.URL, "")
	seedRecord(t, flow, "u1", time.Now().Add(time.Minute), "RT1")

	token, err := flow.ValidToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "OLD", token)
}

func TestValidTokenTransientFailureExpired(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close()

	store := storage.NewMemoryStore()
	flow := newTestFlow(t, store, ts.URL, "")
	seedRecord(t, flow, "u1", time.Now().Add(-time.Minute), "RT1")

	_, err := flow.ValidToken(context.Background(), "u1")
	assert.True(t, errors.IsNotConnected(err))

	// The record survives; a later refresh attempt may still succeed.
	record, loadErr := flow.tokens.Load(context.Background(), "u1")
	require.NoError(t, loadErr)
	assert.Equal(t, "RT1", record.RefreshToken)
}

func TestValidTokenNoRefreshTokenPurges(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	flow := newTestFlow(t, store, "", "")
	seedRecord(t, flow, "u1", time.Now().Add(-time.Minute), "")

	_, err := flow.ValidToken(context.Background(), "u1")
	assert.True(t, errors.IsNotConnected(err))
	assert.Equal(t, 0, store.Len())
}

func TestValidTokenUnderScopedRecordPurges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	flow := newTestFlow(t, store, "", "")
	require.NoError(t, flow.tokens.Save(ctx, &TokenRecord{
		Subject:       "u1",
		AccessToken:   "OLD",
		RefreshToken:  "RT1",
		ExpiresAt:     time.Now().Add(time.Hour),
		GrantedScopes: []string{"profile"},
	}))

	_, err := flow.ValidToken(ctx, "u1")
	assert.True(t, errors.IsScopeMissing(err))
	assert.Equal(t, 0, store.Len())
}

func TestRefreshDeduplicatesConcurrentCallers(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"access_token": "NEW",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}))
	}))
	t.Cleanup(ts.Close)

	flow := newTestFlow(t, storage.NewMemoryStore(), ts.URL, "")
	seedRecord(t, flow, "u1", time.Now().Add(time.Minute), "RT1")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := flow.ValidToken(context.Background(), "u1")
			results[i], errs[i] = token, err
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "NEW", results[i])
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	ts := tokenEndpoint(t, http.StatusOK, map[string]any{
		"access_token": "NEW",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}, nil)

	flow := newTestFlow(t, storage.NewMemoryStore(), ts.URL, "")
	seedRecord(t, flow, "u1", time.Now().Add(time.Minute), "RT1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record, err := flow.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "NEW", record.AccessToken)
}

func TestPurgeRemovesEverything(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()
	flow := newTestFlow(t, store, "", "")
	seedRecord(t, flow, "u1", time.Now().Add(time.Hour), "RT1")
	beginAuthorization(t, flow, "u1")

	require.NoError(t, flow.Purge(ctx, "u1"))
	assert.Equal(t, 0, store.Len())
}
