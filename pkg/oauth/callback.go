package oauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/logger"
)

// invalidGrant is the RFC 6749 error code for an expired, revoked, or
// already-used authorization grant.
const invalidGrant = "invalid_grant"

// HandleCallback processes the provider's authorization response. It walks
// the flow Received -> StateVerified -> CodeExchanged -> ScopeVerified ->
// Complete, exiting with a terminal error at the first failed stage. The
// pending CSRF state is consumed exactly once, whether or not verification
// succeeds, and a scope mismatch purges anything already stored so a
// half-authorized credential is never left behind.
func (f *Flow) HandleCallback(ctx context.Context, code, state, errParam string) (*TokenRecord, error) {
	csrf, subject := DecodeStateParam(state)

	// A provider-reported error means the user declined or the request was
	// rejected; do not attempt an exchange. The pending state is still
	// consumed so nothing is left behind for a later replay.
	if errParam != "" {
		f.discardPendingState(ctx, subject)
		return nil, errors.NewProviderDeniedError(
			fmt.Sprintf("provider returned error %q", errParam), nil)
	}
	if code == "" {
		f.discardPendingState(ctx, subject)
		return nil, errors.NewNoCodeError("authorization response carried no code", nil)
	}

	if err := f.states.Verify(ctx, subject, csrf); err != nil {
		return nil, err
	}

	token, err := f.exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	grantedScopes, err := f.grantedScopes(ctx, token)
	if err != nil {
		return nil, err
	}

	record := &TokenRecord{
		Subject:       subject,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     token.Expiry,
		GrantedScopes: grantedScopes,
	}

	if !record.HasScope(f.config.RequiredScope) {
		// Purge anything stored for the subject, including a token
		// persisted by an earlier successful connection: a credential
		// without the resource scope is useless and must not linger.
		if purgeErr := f.tokens.Purge(ctx, subject); purgeErr != nil {
			logger.Warnf("Failed to purge tokens after scope mismatch: %v", purgeErr)
		}
		return nil, errors.NewScopeMissingError(
			fmt.Sprintf("granted scopes %q do not include %q", grantedScopes, f.config.RequiredScope), nil)
	}

	if err := f.tokens.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persist token record: %w", err)
	}

	logger.Infow("Photo library connected",
		"subject", record.Subject, "expires_at", record.ExpiresAt)
	return record, nil
}

// discardPendingState burns any stored CSRF state for subject on terminal
// exits that happen before verification runs.
func (f *Flow) discardPendingState(ctx context.Context, subject string) {
	if err := f.states.Verify(ctx, subject, ""); err != nil && !errors.IsStateMismatch(err) {
		logger.Debugf("Failed to discard pending state: %v", err)
	}
}

// exchange swaps the authorization code for tokens and checks that the
// response carries a usable bearer access token.
func (f *Flow) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)

	token, err := f.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, classifyTokenEndpointError("code exchange", err)
	}

	// A response with only an identity token and no access token is a
	// wrong-credential-type bug, not a success.
	if token.AccessToken == "" {
		return nil, errors.NewExchangeFailedError("exchange response contained no access token", nil)
	}
	if !strings.EqualFold(token.Type(), "Bearer") {
		return nil, errors.NewExchangeFailedError(
			fmt.Sprintf("exchange returned token type %q, want bearer", token.Type()), nil)
	}
	if token.Expiry.IsZero() {
		// Defaulting keeps expiry arithmetic working when the provider
		// omits expires_in.
		token.Expiry = time.Now().Add(time.Hour)
	}
	return token, nil
}

// grantedScopes extracts the granted scope set from the exchange response,
// falling back to introspection when the response omits it.
func (f *Flow) grantedScopes(ctx context.Context, token *oauth2.Token) ([]string, error) {
	if raw, ok := token.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		return strings.Fields(raw), nil
	}

	granted, _, err := f.verifier.Check(ctx, token.AccessToken, []string{f.config.RequiredScope})
	if err != nil {
		return nil, err
	}
	return granted, nil
}

// classifyTokenEndpointError maps a golang.org/x/oauth2 error into the flow
// taxonomy, exactly once at this boundary. invalid_grant (code expired or
// reused, refresh token revoked) is distinguished from transport failures,
// which the caller may retry.
func classifyTokenEndpointError(op string, err error) error {
	// golang.org/x/oauth2 reports an id_token-only response as a missing
	// access_token; that is a provider contract violation, not a network
	// problem.
	if strings.Contains(err.Error(), "missing access_token") {
		return errors.NewExchangeFailedError(op+" response contained no access token", err)
	}

	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == invalidGrant {
			return errors.NewExchangeFailedError(op+" rejected: "+invalidGrant, err)
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return errors.NewTransientError(op+" failed at provider", err)
		}
		return errors.NewExchangeFailedError(op+" rejected by provider", err)
	}
	return errors.NewTransientError(op+" transport failure", err)
}
