// SPDX-FileCopyrightText: Copyright 2026 Jotter HQ
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/logger"
	"github.com/jotterhq/photolink/pkg/networking"
	"github.com/jotterhq/photolink/pkg/storage"
)

// ValidToken returns an access token for subject that is valid at the moment
// of return, refreshing first when the stored token is within the refresh
// skew of expiry. Refresh failures degrade as follows: invalid_grant purges
// the record (the user must reconnect); a transient failure falls back to
// the stored token as long as it has not strictly expired, trading freshness
// for availability.
func (f *Flow) ValidToken(ctx context.Context, subject string) (string, error) {
	record, err := f.tokens.Load(ctx, subject)
	if err != nil {
		return "", err
	}

	if !record.HasScope(f.config.RequiredScope) {
		// A record without the resource scope is unusable; purge it at
		// first detection so the UI can offer reconnection.
		if purgeErr := f.tokens.Purge(ctx, subject); purgeErr != nil {
			logger.Warnf("Failed to purge under-scoped record: %v", purgeErr)
		}
		return "", errors.NewScopeMissingError("stored record lacks the required resource scope", nil)
	}

	if !record.ExpiresWithin(time.Now(), f.config.refreshSkew()) {
		return record.AccessToken, nil
	}

	refreshed, err := f.Refresh(ctx, subject)
	if err == nil {
		return refreshed.AccessToken, nil
	}
	if errors.IsTransient(err) {
		if !record.Expired(time.Now()) {
			logger.Warnw("Token refresh failed transiently, serving unexpired token",
				"subject", storage.SubjectKey(subject), "error", err)
			return record.AccessToken, nil
		}
		return "", errors.NewNotConnectedError("token expired and refresh is temporarily failing", err)
	}
	return "", err
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result. Concurrent calls for the same subject share a single
// underlying refresh; callers either win the flight or receive the winner's
// result.
func (f *Flow) Refresh(ctx context.Context, subject string) (*TokenRecord, error) {
	v, err, _ := f.refreshGroup.Do(storage.SubjectKey(subject), func() (any, error) {
		return f.doRefresh(ctx, subject)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenRecord), nil
}

func (f *Flow) doRefresh(ctx context.Context, subject string) (*TokenRecord, error) {
	// An in-flight refresh must complete and persist even if the caller
	// abandons the request; cancelling after the token endpoint has seen
	// the request would leave the store ambiguous. The refresh runs on its
	// own timeout, detached from the caller's cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), networking.HttpTimeout)
	defer cancel()

	record, err := f.tokens.Load(ctx, subject)
	if err != nil {
		return nil, err
	}
	if record.RefreshToken == "" {
		// Nothing to refresh with; the record can only age out.
		if purgeErr := f.tokens.Purge(ctx, subject); purgeErr != nil {
			logger.Warnf("Failed to purge record without refresh token: %v", purgeErr)
		}
		return nil, errors.NewNotConnectedError("no refresh token stored; reconnection required", nil)
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	source := f.oauth2Config.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: record.RefreshToken})

	token, err := source.Token()
	if err != nil {
		if isInvalidGrant(err) {
			// The refresh token is revoked or expired; the record is dead.
			if purgeErr := f.tokens.Purge(ctx, subject); purgeErr != nil {
				logger.Warnf("Failed to purge record after invalid_grant: %v", purgeErr)
			}
			return nil, errors.NewNotConnectedError("refresh token rejected; reconnection required", err)
		}
		return nil, errors.NewTransientError("token refresh failed", err)
	}

	record.AccessToken = token.AccessToken
	record.ExpiresAt = token.Expiry
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(time.Hour)
	}
	// Providers commonly omit rotation; keep the old refresh token unless a
	// new one was issued.
	if token.RefreshToken != "" {
		record.RefreshToken = token.RefreshToken
	}

	if err := f.tokens.Save(ctx, record); err != nil {
		return nil, err
	}

	logger.Debugw("Access token refreshed",
		"subject", storage.SubjectKey(subject), "expires_at", record.ExpiresAt)
	return record, nil
}

// Purge removes every stored credential and any pending state for subject.
func (f *Flow) Purge(ctx context.Context, subject string) error {
	return f.tokens.Purge(ctx, subject)
}

func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	return stderrors.As(err, &retrieveErr) && retrieveErr.ErrorCode == invalidGrant
}
