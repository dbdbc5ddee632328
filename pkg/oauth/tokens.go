// SPDX-FileCopyrightText: Copyright 2026 Jotter HQ
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/storage"
)

// Per-subject key fields for persisted token records.
const (
	fieldAccessToken   = "accessToken"
	fieldRefreshToken  = "refreshToken"
	fieldExpiresAt     = "expiresAt"
	fieldSubjectID     = "subjectId"
	fieldGrantedScopes = "grantedScopes"
)

// TokenRecord holds the credentials obtained for one subject.
type TokenRecord struct {
	// Subject is the owning identity.
	Subject string

	// AccessToken is the short-lived bearer credential.
	AccessToken string

	// RefreshToken is the long-lived credential; empty if the provider
	// withheld it.
	RefreshToken string

	// ExpiresAt is the instant after which AccessToken must not be used.
	ExpiresAt time.Time

	// GrantedScopes are the scopes actually granted by the provider, which
	// may differ from the scopes requested.
	GrantedScopes []string
}

// Expired reports whether the access token is past its expiry at now.
func (r *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires within skew of now.
func (r *TokenRecord) ExpiresWithin(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(r.ExpiresAt)
}

// HasScope reports whether scope was granted.
func (r *TokenRecord) HasScope(scope string) bool {
	return slices.Contains(r.GrantedScopes, scope)
}

// TokenStore reads and writes TokenRecords keyed by subject, one field per
// key so that individual writes stay atomic in every backend.
type TokenStore struct {
	store storage.Store
	ns    storage.Namespace
}

// NewTokenStore creates a TokenStore persisting into store under prefix.
func NewTokenStore(store storage.Store, prefix string) *TokenStore {
	return &TokenStore{
		store: store,
		ns:    storage.NewNamespace(prefix),
	}
}

// Load returns the record for subject, or a not-connected error when no
// record exists.
func (s *TokenStore) Load(ctx context.Context, subject string) (*TokenRecord, error) {
	accessToken, err := s.store.Get(ctx, s.ns.Key(subject, fieldAccessToken))
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NewNotConnectedError("no token record for subject", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}

	record := &TokenRecord{
		Subject:     subject,
		AccessToken: accessToken,
	}

	if refreshToken, err := s.store.Get(ctx, s.ns.Key(subject, fieldRefreshToken)); err == nil {
		record.RefreshToken = refreshToken
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("read refresh token: %w", err)
	}

	rawExpiry, err := s.store.Get(ctx, s.ns.Key(subject, fieldExpiresAt))
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("read expiry: %w", err)
	}
	if err == nil {
		millis, parseErr := strconv.ParseInt(rawExpiry, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("corrupt expiry %q for subject: %w", rawExpiry, parseErr)
		}
		record.ExpiresAt = time.UnixMilli(millis)
	}

	if rawScopes, err := s.store.Get(ctx, s.ns.Key(subject, fieldGrantedScopes)); err == nil {
		record.GrantedScopes = strings.Fields(rawScopes)
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("read granted scopes: %w", err)
	}

	return record, nil
}

// Save persists record under its subject, field per key. ExpiresAt is stored
// as epoch milliseconds. An empty refresh token leaves any previously stored
// one in place, since providers commonly omit rotation.
func (s *TokenStore) Save(ctx context.Context, record *TokenRecord) error {
	subject := record.Subject

	if err := s.store.Set(ctx, s.ns.Key(subject, fieldAccessToken), record.AccessToken); err != nil {
		return fmt.Errorf("write access token: %w", err)
	}
	if record.RefreshToken != "" {
		if err := s.store.Set(ctx, s.ns.Key(subject, fieldRefreshToken), record.RefreshToken); err != nil {
			return fmt.Errorf("write refresh token: %w", err)
		}
	}
	expiry := strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10)
	if err := s.store.Set(ctx, s.ns.Key(subject, fieldExpiresAt), expiry); err != nil {
		return fmt.Errorf("write expiry: %w", err)
	}
	if err := s.store.Set(ctx, s.ns.Key(subject, fieldSubjectID), subject); err != nil {
		return fmt.Errorf("write subject id: %w", err)
	}
	scopes := strings.Join(record.GrantedScopes, " ")
	if err := s.store.Set(ctx, s.ns.Key(subject, fieldGrantedScopes), scopes); err != nil {
		return fmt.Errorf("write granted scopes: %w", err)
	}
	return nil
}

// Purge removes every stored field for subject, including any pending CSRF
// state, so that a failed flow leaves nothing behind.
func (s *TokenStore) Purge(ctx context.Context, subject string) error {
	fields := []string{
		fieldAccessToken,
		fieldRefreshToken,
		fieldExpiresAt,
		fieldSubjectID,
		fieldGrantedScopes,
		fieldOAuthState,
	}
	for _, field := range fields {
		if err := s.store.Delete(ctx, s.ns.Key(subject, field)); err != nil {
			return fmt.Errorf("purge %s: %w", field, err)
		}
	}
	return nil
}
