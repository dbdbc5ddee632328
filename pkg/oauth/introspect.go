package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/logger"
	"github.com/jotterhq/photolink/pkg/networking"
)

// maxIntrospectResponseSize bounds the decoded introspection body.
const maxIntrospectResponseSize = 1024 * 1024 // 1MB

// tokenInfo is the provider's introspection response.
type tokenInfo struct {
	Scope     string `json:"scope"`
	ExpiresIn int64  `json:"expires_in"`
	Error     string `json:"error"`
}

// ScopeVerifier introspects an access token against the provider's tokeninfo
// endpoint and reports granted versus required scopes.
//
// Transport failure is reported as a transient error, never as missing
// scope: a briefly unreachable introspection endpoint must not cause token
// purges. Only an explicit response showing the scope absent counts as
// missing.
type ScopeVerifier struct {
	introspectURL string
	client        networking.HTTPClient
}

// NewScopeVerifier creates a ScopeVerifier for the given endpoint.
func NewScopeVerifier(introspectURL string, client networking.HTTPClient) *ScopeVerifier {
	return &ScopeVerifier{
		introspectURL: introspectURL,
		client:        client,
	}
}

// Check introspects accessToken and splits required into granted and missing.
// A transient error means the answer is unknown; callers must not treat it
// as a missing scope.
func (v *ScopeVerifier) Check(ctx context.Context, accessToken string, required []string) (granted, missing []string, err error) {
	if v.introspectURL == "" {
		return nil, nil, errors.NewConfigError("no introspection endpoint configured", nil)
	}

	info, err := v.fetchTokenInfo(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}

	if info.Error != "" {
		// Authoritative provider answer: the token is invalid, so every
		// required scope is missing.
		logger.Debugw("Introspection reported invalid token", "error", info.Error)
		return nil, append([]string(nil), required...), nil
	}

	granted = strings.Fields(info.Scope)
	for _, want := range required {
		found := false
		for _, have := range granted {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, want)
		}
	}
	return granted, missing, nil
}

func (v *ScopeVerifier) fetchTokenInfo(ctx context.Context, accessToken string) (*tokenInfo, error) {
	reqURL, err := url.Parse(v.introspectURL)
	if err != nil {
		return nil, errors.NewConfigError("malformed introspection URL", err)
	}
	query := reqURL.Query()
	query.Set("access_token", accessToken)
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errors.NewTransientError("introspection endpoint unreachable", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.NewTransientError(
			fmt.Sprintf("introspection endpoint returned HTTP %d", resp.StatusCode), nil)
	}

	var info tokenInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIntrospectResponseSize)).Decode(&info); err != nil {
		return nil, errors.NewTransientError("introspection response unreadable", err)
	}

	// Non-2xx with a decoded error field is an authoritative invalid-token
	// answer; non-2xx without one is indeterminate.
	if resp.StatusCode >= http.StatusBadRequest && info.Error == "" {
		return nil, errors.NewTransientError(
			fmt.Sprintf("introspection endpoint returned HTTP %d with no error detail", resp.StatusCode), nil)
	}

	return &info, nil
}
