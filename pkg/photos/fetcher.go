// Package photos calls the provider's photo-library API with tokens supplied
// by the connection flow, applying the 401/403 recovery policy: one forced
// refresh-and-retry on 401, and scope-aware classification of 403 responses.
package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/logger"
	"github.com/jotterhq/photolink/pkg/networking"
	"github.com/jotterhq/photolink/pkg/oauth"
)

const (
	// MaxPageSize is the provider's documented page-size ceiling.
	MaxPageSize = 100

	// searchMaxTries bounds transport-level retries per search call.
	searchMaxTries = 3

	// maxSearchResponseSize bounds the decoded search response body.
	maxSearchResponseSize = 8 * 1024 * 1024 // 8MB
)

// Connection supplies and maintains access tokens for the fetcher. It is
// implemented by *oauth.Flow.
type Connection interface {
	// ValidToken returns an access token valid at the moment of return.
	ValidToken(ctx context.Context, subject string) (string, error)

	// Refresh forces a token refresh and returns the updated record.
	Refresh(ctx context.Context, subject string) (*oauth.TokenRecord, error)

	// Purge removes the stored credentials for subject.
	Purge(ctx context.Context, subject string) error
}

// MediaItem is one photo-library entry from the provider's search response.
type MediaItem struct {
	ID       string `json:"id"`
	BaseURL  string `json:"baseUrl"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
}

// Fetcher performs paged searches against the photo-library resource API.
type Fetcher struct {
	searchURL string
	client    networking.HTTPClient
	conn      Connection
}

// NewFetcher creates a Fetcher calling searchURL with tokens from conn.
func NewFetcher(searchURL string, client networking.HTTPClient, conn Connection) (*Fetcher, error) {
	if err := networking.ValidateEndpointURL(searchURL); err != nil {
		return nil, errors.NewConfigError("invalid resource API URL", err)
	}
	if client == nil {
		client = networking.NewHttpClientBuilder().Build()
	}
	return &Fetcher{
		searchURL: searchURL,
		client:    client,
		conn:      conn,
	}, nil
}

// SearchPage fetches one page of media items for subject. pageSize is
// clamped to [1, MaxPageSize]. A 401 triggers exactly one forced refresh and
// retry; a second 401 purges the record and is terminal. A 403 is purging
// only when the body indicates insufficient scope; quota or API-disabled
// conditions surface as forbidden without touching the stored tokens.
func (f *Fetcher) SearchPage(ctx context.Context, subject string, pageSize int) ([]MediaItem, error) {
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	token, err := f.conn.ValidToken(ctx, subject)
	if err != nil {
		return nil, err
	}

	result, err := f.search(ctx, token, pageSize)
	if err != nil {
		return nil, err
	}

	if result.status == http.StatusUnauthorized {
		logger.Infow("Resource API rejected token, forcing refresh", "subject_present", subject != "")
		record, err := f.conn.Refresh(ctx, subject)
		if err != nil {
			return nil, err
		}
		result, err = f.search(ctx, record.AccessToken, pageSize)
		if err != nil {
			return nil, err
		}
		if result.status == http.StatusUnauthorized {
			// Fresh token rejected too; the connection is dead.
			if purgeErr := f.conn.Purge(ctx, subject); purgeErr != nil {
				logger.Warnf("Failed to purge after repeated 401: %v", purgeErr)
			}
			return nil, errors.NewUnauthorizedError("resource API rejected a freshly refreshed token", nil)
		}
	}

	return f.interpret(ctx, subject, result)
}

// searchResult is one HTTP attempt's outcome.
type searchResult struct {
	status int
	body   []byte
}

// search performs the search call, retrying transport failures with
// exponential backoff. HTTP error statuses are returned, not retried; their
// handling is the caller's recovery policy.
func (f *Fetcher) search(ctx context.Context, token string, pageSize int) (*searchResult, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond

	result, err := backoff.Retry(ctx, func() (*searchResult, error) {
		return f.searchOnce(ctx, token, pageSize)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(searchMaxTries),
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Debugf("Retrying photo search after %v: %v", duration, err)
		}),
	)
	if err != nil {
		return nil, errors.NewTransientError("photo search transport failure", err)
	}
	return result, nil
}

func (f *Fetcher) searchOnce(ctx context.Context, token string, pageSize int) (*searchResult, error) {
	payload, err := json.Marshal(map[string]any{"pageSize": pageSize})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("encode search request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build search request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("photo search: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	return &searchResult{status: resp.StatusCode, body: body}, nil
}

// interpret maps a non-401 search result into items or a classified error.
func (f *Fetcher) interpret(ctx context.Context, subject string, result *searchResult) ([]MediaItem, error) {
	switch {
	case result.status == http.StatusOK:
		var parsed struct {
			MediaItems []MediaItem `json:"mediaItems"`
		}
		if err := json.Unmarshal(result.body, &parsed); err != nil {
			return nil, errors.NewTransientError("search response unreadable", err)
		}
		return parsed.MediaItems, nil

	case result.status == http.StatusForbidden:
		if scopeInsufficient(result.body) {
			// The token exists but cannot reach photos; it is useless
			// until the user re-consents with the right scope.
			if purgeErr := f.conn.Purge(ctx, subject); purgeErr != nil {
				logger.Warnf("Failed to purge under-scoped connection: %v", purgeErr)
			}
			return nil, errors.NewScopeMissingError("resource API reported insufficient scope", nil)
		}
		return nil, errors.NewForbiddenError(
			"resource API refused the request: "+networking.PreviewBody(result.body),
			networking.NewHTTPError(result.status, f.searchURL, networking.PreviewBody(result.body)))

	default:
		return nil, errors.NewTransientError(
			fmt.Sprintf("resource API returned HTTP %d", result.status),
			networking.NewHTTPError(result.status, f.searchURL, networking.PreviewBody(result.body)))
	}
}

// scopeInsufficient reports whether a 403 body blames the token's scope
// rather than quota or provider configuration. The markers cover both the
// legacy errors array and the newer status/details shapes.
func scopeInsufficient(body []byte) bool {
	root := gjson.GetBytes(body, "error")
	if !root.Exists() {
		return false
	}

	message := strings.ToLower(root.Get("message").String())
	if strings.Contains(message, "insufficient") &&
		(strings.Contains(message, "scope") || strings.Contains(message, "permission")) {
		return true
	}

	for _, detail := range root.Get("details").Array() {
		if detail.Get("reason").String() == "ACCESS_TOKEN_SCOPE_INSUFFICIENT" {
			return true
		}
	}
	for _, entry := range root.Get("errors").Array() {
		if entry.Get("reason").String() == "insufficientPermissions" {
			return true
		}
	}
	return false
}
