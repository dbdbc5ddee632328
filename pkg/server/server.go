// SPDX-FileCopyrightText: Copyright 2026 Jotter HQ
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the HTTP surface for the photo-library connection:
// the connect redirect, the OAuth callback, and the random-photo API used by
// the journal UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	flowerrors "github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/logger"
	"github.com/jotterhq/photolink/pkg/oauth"
	"github.com/jotterhq/photolink/pkg/photos"
)

// Handler provides the HTTP handlers for the connection flow endpoints.
type Handler struct {
	flow    *oauth.Flow
	fetcher *photos.Fetcher
}

// NewHandler creates a Handler over the given flow and fetcher.
func NewHandler(flow *oauth.Flow, fetcher *photos.Fetcher) *Handler {
	return &Handler{
		flow:    flow,
		fetcher: fetcher,
	}
}

// Routes returns a router with the connection endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/auth/connect", h.ConnectHandler)
	r.Get("/oauth2/callback", h.CallbackHandler)
	r.Get("/api/photos/random", h.RandomPhotoHandler)
	return r
}

// ConnectHandler starts the authorization flow for the given user and
// redirects to the provider's consent page.
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("user")

	authURL, err := h.flow.AuthorizeURL(r.Context(), subject)
	if err != nil {
		logger.Errorf("Failed to build authorization URL: %v", err)
		http.Error(w, flowerrors.UserMessage(err), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler receives the provider's authorization response. Its path
// must exactly match the redirect URI registered with the provider.
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	_, err := h.flow.HandleCallback(r.Context(),
		query.Get("code"), query.Get("state"), query.Get("error"))
	if err != nil {
		logger.Warnw("Callback processing failed", "error", err)
		writeErrorPage(w, flowerrors.UserMessage(err))
		return
	}

	writeSuccessPage(w)
}

// RandomPhotoHandler returns randomly selected photos for the given user.
func (h *Handler) RandomPhotoHandler(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("user")

	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			count = n
		}
	}

	items, err := h.fetcher.RandomPick(r.Context(), subject, count)
	if err != nil {
		status := statusForError(err)
		logger.Debugw("Random photo request failed", "status", status, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": flowerrors.UserMessage(err),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"items": items}); err != nil {
		logger.Warnf("Failed to write response: %v", err)
	}
}

// statusForError maps the flow error taxonomy onto HTTP statuses for the
// journal UI. Terminal kinds that require reconnection are distinguishable
// from transient ones the UI may simply retry.
func statusForError(err error) int {
	var flowErr *flowerrors.Error
	if !errors.As(err, &flowErr) {
		return http.StatusInternalServerError
	}
	switch flowErr.Kind {
	case flowerrors.KindNotConnected:
		return http.StatusConflict
	case flowerrors.KindScopeMissing, flowerrors.KindForbidden:
		return http.StatusForbidden
	case flowerrors.KindUnauthorized:
		return http.StatusUnauthorized
	case flowerrors.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
